// Package mailsync keeps the local mirror consistent with the remote mailbox and carries the
// provider-backed user actions.
package mailsync

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/classify"
	"github.com/hal9000y/mailmirror/internal/extract"
	"github.com/hal9000y/mailmirror/internal/mail"
	"github.com/hal9000y/mailmirror/internal/store"
)

// Provider is the remote mailbox.
type Provider interface {
	Available() bool
	ListMessages(ctx context.Context, q, pageToken string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error)
	GetMessage(ctx context.Context, msgID string) (*gmail.Message, error)
	GetAttachment(ctx context.Context, msgID, attachmentID string) (*gmail.MessagePartBody, error)
	ModifyLabels(ctx context.Context, msgID string, add, remove []string) error
	Trash(ctx context.Context, msgID string) error
	Send(ctx context.Context, raw []byte, threadID string) (*gmail.Message, error)
	ListDrafts(ctx context.Context, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error)
	GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error)
	CreateDraft(ctx context.Context, raw []byte, threadID string) (*gmail.Draft, error)
	UpdateDraft(ctx context.Context, draftID string, raw []byte, threadID string) (*gmail.Draft, error)
	DeleteDraft(ctx context.Context, draftID string) error
}

// Store is the local mirror.
type Store interface {
	Reconcile(ctx context.Context, snap mail.Snapshot) (int64, error)
	Get(ctx context.Context, id int64) (mail.Message, error)
	GetByExternalID(ctx context.Context, externalID string) (mail.Message, error)
	MarkRead(ctx context.Context, id int64, read bool) error
	SetType(ctx context.Context, id int64, t mail.Type) error
	UpdateDraft(ctx context.Context, id int64, text string) error
	UpdateAIFields(ctx context.Context, id int64, f store.AIFields) error
	Delete(ctx context.Context, id int64) error
	CreateReply(ctx context.Context, sourceID int64, body string, to, cc []string) (int64, error)
	SaveLocalDraft(ctx context.Context, id int64, providerDraftID string, out mail.Outgoing) (int64, error)
	CreateLocalSent(ctx context.Context, out mail.Outgoing) (int64, error)
	LocalUser() string
}

// Classifier produces triage suggestions and reply drafts.
type Classifier interface {
	Analyze(ctx context.Context, msg mail.Message) (*classify.Suggestion, bool)
	GenerateReply(ctx context.Context, msg mail.Message, to, cc []string, current string) (string, bool)
}

// Service combines the provider, the mirror and the classifier. Provider-dependent operations check
// availability first and degrade to local-only behavior.
type Service struct {
	provider   Provider
	store      Store
	classifier Classifier
	extractor  *extract.Extractor
	log        logrus.FieldLogger
}

func NewService(p Provider, st Store, c Classifier, log logrus.FieldLogger) *Service {
	return &Service{
		provider:   p,
		store:      st,
		classifier: c,
		extractor:  extract.New(p, log),
		log:        log,
	}
}

func (s *Service) available() bool {
	return s.provider != nil && s.provider.Available()
}
