package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/service"
)

const (
	ClaimSubject = "sub"
	ClaimRole    = "role"
)

type credentialKey struct{}

// NewTokenAuth returns the HS256 signer/verifier shared by the server and the token CLI.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken signs a token for subject with role. A positive ttl sets the exp claim.
func IssueToken(ja *jwtauth.JWTAuth, subject string, role service.Role, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		ClaimSubject: subject,
		ClaimRole:    string(role),
	}
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}
	_, token, err := ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Authenticate verifies the bearer token and stores the caller's credential on
// the request context. Requests without a valid token get 401.
func Authenticate(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verify := jwtauth.Verifier(ja)
	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				RenderError(w, r, fmt.Errorf("%w: %v", appErrors.ErrUnauthenticated, err))
				return
			}
			subject, _ := claims[ClaimSubject].(string)
			role, _ := claims[ClaimRole].(string)
			if subject == "" {
				RenderError(w, r, fmt.Errorf("%w: token has no subject", appErrors.ErrUnauthenticated))
				return
			}
			cred := service.Credential{Subject: subject, Role: service.Role(role)}
			next.ServeHTTP(w, r.WithContext(WithCredential(r.Context(), cred)))
		}))
	}
}

func WithCredential(ctx context.Context, cred service.Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFrom returns the request's credential, or the zero Credential when none was set.
func CredentialFrom(ctx context.Context) service.Credential {
	cred, _ := ctx.Value(credentialKey{}).(service.Credential)
	return cred
}
