package repository

import (
	"encoding/base64"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
)

const cursorPrefix = "seq:"

// EncodeCursor returns the opaque token for a position after seq.
func EncodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatInt(seq, 10)))
}

// DecodeCursor returns the ordering key encoded in token. An empty token is the start of the list.
func DecodeCursor(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, appErrors.NewValidation("malformed cursor")
	}
	s := string(raw)
	if !strings.HasPrefix(s, cursorPrefix) {
		return 0, appErrors.NewValidation("malformed cursor")
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(s, cursorPrefix), 10, 64)
	if err != nil || seq < 0 {
		return 0, appErrors.NewValidation("malformed cursor")
	}
	return seq, nil
}
