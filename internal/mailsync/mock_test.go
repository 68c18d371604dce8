package mailsync_test

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/classify"
	"github.com/hal9000y/mailmirror/internal/mail"
	"github.com/hal9000y/mailmirror/internal/mailsync"
	"github.com/hal9000y/mailmirror/internal/store"
)

var errUnexpected = errors.New("unexpected call")

type providerMock struct {
	mu    sync.Mutex
	calls map[string]int

	AvailableFunc     func() bool
	ListMessagesFunc  func(ctx context.Context, q, pageToken string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error)
	GetMessageFunc    func(ctx context.Context, msgID string) (*gmail.Message, error)
	GetAttachmentFunc func(ctx context.Context, msgID, attachmentID string) (*gmail.MessagePartBody, error)
	ModifyLabelsFunc  func(ctx context.Context, msgID string, add, remove []string) error
	TrashFunc         func(ctx context.Context, msgID string) error
	SendFunc          func(ctx context.Context, raw []byte, threadID string) (*gmail.Message, error)
	ListDraftsFunc    func(ctx context.Context, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error)
	GetDraftFunc      func(ctx context.Context, draftID string) (*gmail.Draft, error)
	CreateDraftFunc   func(ctx context.Context, raw []byte, threadID string) (*gmail.Draft, error)
	UpdateDraftFunc   func(ctx context.Context, draftID string, raw []byte, threadID string) (*gmail.Draft, error)
	DeleteDraftFunc   func(ctx context.Context, draftID string) error
}

func (m *providerMock) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

func (m *providerMock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *providerMock) Available() bool {
	if m.AvailableFunc == nil {
		return true
	}
	return m.AvailableFunc()
}

func (m *providerMock) ListMessages(ctx context.Context, q, pageToken string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error) {
	m.record("ListMessages")
	if m.ListMessagesFunc == nil {
		return nil, errUnexpected
	}
	return m.ListMessagesFunc(ctx, q, pageToken, maxResults, includeSpamTrash)
}

func (m *providerMock) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	m.record("GetMessage")
	if m.GetMessageFunc == nil {
		return nil, errUnexpected
	}
	return m.GetMessageFunc(ctx, msgID)
}

func (m *providerMock) GetAttachment(ctx context.Context, msgID, attachmentID string) (*gmail.MessagePartBody, error) {
	m.record("GetAttachment")
	if m.GetAttachmentFunc == nil {
		return nil, errUnexpected
	}
	return m.GetAttachmentFunc(ctx, msgID, attachmentID)
}

func (m *providerMock) ModifyLabels(ctx context.Context, msgID string, add, remove []string) error {
	m.record("ModifyLabels")
	if m.ModifyLabelsFunc == nil {
		return errUnexpected
	}
	return m.ModifyLabelsFunc(ctx, msgID, add, remove)
}

func (m *providerMock) Trash(ctx context.Context, msgID string) error {
	m.record("Trash")
	if m.TrashFunc == nil {
		return errUnexpected
	}
	return m.TrashFunc(ctx, msgID)
}

func (m *providerMock) Send(ctx context.Context, raw []byte, threadID string) (*gmail.Message, error) {
	m.record("Send")
	if m.SendFunc == nil {
		return nil, errUnexpected
	}
	return m.SendFunc(ctx, raw, threadID)
}

func (m *providerMock) ListDrafts(ctx context.Context, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error) {
	m.record("ListDrafts")
	if m.ListDraftsFunc == nil {
		return nil, errUnexpected
	}
	return m.ListDraftsFunc(ctx, pageToken, maxResults)
}

func (m *providerMock) GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error) {
	m.record("GetDraft")
	if m.GetDraftFunc == nil {
		return nil, errUnexpected
	}
	return m.GetDraftFunc(ctx, draftID)
}

func (m *providerMock) CreateDraft(ctx context.Context, raw []byte, threadID string) (*gmail.Draft, error) {
	m.record("CreateDraft")
	if m.CreateDraftFunc == nil {
		return nil, errUnexpected
	}
	return m.CreateDraftFunc(ctx, raw, threadID)
}

func (m *providerMock) UpdateDraft(ctx context.Context, draftID string, raw []byte, threadID string) (*gmail.Draft, error) {
	m.record("UpdateDraft")
	if m.UpdateDraftFunc == nil {
		return nil, errUnexpected
	}
	return m.UpdateDraftFunc(ctx, draftID, raw, threadID)
}

func (m *providerMock) DeleteDraft(ctx context.Context, draftID string) error {
	m.record("DeleteDraft")
	if m.DeleteDraftFunc == nil {
		return errUnexpected
	}
	return m.DeleteDraftFunc(ctx, draftID)
}

func unavailable() *providerMock {
	return &providerMock{AvailableFunc: func() bool { return false }}
}

type classifierMock struct {
	AnalyzeFunc       func(ctx context.Context, msg mail.Message) (*classify.Suggestion, bool)
	GenerateReplyFunc func(ctx context.Context, msg mail.Message, to, cc []string, current string) (string, bool)
}

func (m *classifierMock) Analyze(ctx context.Context, msg mail.Message) (*classify.Suggestion, bool) {
	return m.AnalyzeFunc(ctx, msg)
}

func (m *classifierMock) GenerateReply(ctx context.Context, msg mail.Message, to, cc []string, current string) (string, bool) {
	return m.GenerateReplyFunc(ctx, msg, to, cc, current)
}

var receivedAt = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

// gmailMessage builds a full single-part provider message.
func gmailMessage(id, threadID, subject, body string, labelIDs ...string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     threadID,
		LabelIds:     labelIDs,
		InternalDate: receivedAt.UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: "ann@x.com"},
				{Name: "To", Value: "me@example.com"},
			},
			Body: &gmail.MessagePartBody{Data: b64(body)},
		},
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "mirror.db"), store.Options{LocalUser: "me@example.com"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newService(t *testing.T, p mailsync.Provider, c mailsync.Classifier) (*mailsync.Service, *store.Store) {
	t.Helper()

	st := newTestStore(t)
	logger, _ := test.NewNullLogger()

	return mailsync.NewService(p, st, c, logger), st
}
