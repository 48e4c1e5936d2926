package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/statemachine"
)

// requiredMeta names the metadata a publisher needs to deliver each kind.
var requiredMeta = map[model.Kind][]string{
	model.KindReply: {model.MetaRecipient},
	model.KindPost:  {model.MetaPlatform},
}

// Generator is the entry point for produced content. Items start as drafts and
// are handed to review according to the handoff policy.
type Generator struct {
	Store   repository.ContentStore
	Machine statemachine.Machine
	Policy  string
	Log     zerolog.Logger
}

func NewGenerator(store repository.ContentStore, machine statemachine.Machine, policy string, log zerolog.Logger) *Generator {
	if policy == "" {
		policy = PolicySubmit
	}
	return &Generator{Store: store, Machine: machine, Policy: policy, Log: log}
}

func (g *Generator) Emit(ctx context.Context, cred Credential, kind model.Kind, content string, metadata map[string]string) (*model.ContentItem, error) {
	if err := cred.require(RoleGenerator); err != nil {
		return nil, err
	}
	if err := validateEmit(kind, content, metadata); err != nil {
		return nil, err
	}

	item := &model.ContentItem{
		Kind:     kind,
		Status:   model.StatusDraft,
		Content:  content,
		Metadata: metadata,
	}
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	if g.Policy == PolicySubmit {
		next, err := g.Machine.Transition(item, statemachine.ActionSubmit)
		if err != nil {
			return nil, err
		}
		item.Status = next
	}

	created, err := g.Store.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	g.Log.Info().
		Str("item_id", created.ID).
		Str("kind", string(created.Kind)).
		Str("status", string(created.Status)).
		Msg("content emitted")
	return created, nil
}

func validateEmit(kind model.Kind, content string, metadata map[string]string) error {
	if !kind.IsValid() {
		return appErrors.NewValidation("unknown kind %q", kind)
	}
	if strings.TrimSpace(content) == "" {
		return appErrors.NewValidation("content must not be empty")
	}
	for _, key := range requiredMeta[kind] {
		if strings.TrimSpace(metadata[key]) == "" {
			return appErrors.NewValidation("%s items require metadata %q", kind, key)
		}
	}
	return checkLength(kind, content, metadata)
}

// checkLength enforces the post length of known platforms. Unknown platforms
// have no limit.
func checkLength(kind model.Kind, content string, metadata map[string]string) error {
	if kind != model.KindPost {
		return nil
	}
	p, ok := model.LookupPlatform(metadata[model.MetaPlatform])
	if !ok {
		return nil
	}
	if n := utf8.RuneCountInString(content); n > p.MaxPostLength {
		return appErrors.NewValidation("%s posts are limited to %d characters, got %d", p.Name, p.MaxPostLength, n)
	}
	return nil
}
