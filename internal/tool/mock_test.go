package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailmirror/internal/mail"
	"github.com/hal9000y/mailmirror/internal/mailsync"
	"github.com/hal9000y/mailmirror/internal/store"
	"github.com/hal9000y/mailmirror/internal/tool"
)

var errUnexpected = errors.New("unexpected call")

type mailboxMock struct {
	MessageAttachmentMetadataFunc func(ctx context.Context, externalID string) []mail.AttachmentMeta
	DraftAttachmentMetadataFunc   func(ctx context.Context, providerDraftID string) []mail.AttachmentMeta
	SetTypeFunc                   func(ctx context.Context, id int64, t mail.Type) (mail.Message, error)
	SetReadStateFunc              func(ctx context.Context, id int64, read bool) (mail.Message, error)
	ClassifyFunc                  func(ctx context.Context, id int64) (mail.Message, bool, error)
	SuggestReplyFunc              func(ctx context.Context, id int64, to, cc []string) (string, bool, error)
	SendFunc                      func(ctx context.Context, out mail.Outgoing) (mailsync.SendResult, error)
	ReplyFunc                     func(ctx context.Context, sourceID int64, body string, to, cc []string, attachments []mail.Attachment) (mailsync.SendResult, error)
	SaveDraftFunc                 func(ctx context.Context, id int64, providerDraftID string, out mail.Outgoing) (mailsync.DraftResult, error)
	DeleteFunc                    func(ctx context.Context, id int64) error
}

func (m *mailboxMock) MessageAttachmentMetadata(ctx context.Context, externalID string) []mail.AttachmentMeta {
	if m.MessageAttachmentMetadataFunc == nil {
		return nil
	}
	return m.MessageAttachmentMetadataFunc(ctx, externalID)
}

func (m *mailboxMock) DraftAttachmentMetadata(ctx context.Context, providerDraftID string) []mail.AttachmentMeta {
	if m.DraftAttachmentMetadataFunc == nil {
		return nil
	}
	return m.DraftAttachmentMetadataFunc(ctx, providerDraftID)
}

func (m *mailboxMock) SetType(ctx context.Context, id int64, t mail.Type) (mail.Message, error) {
	if m.SetTypeFunc == nil {
		return mail.Message{}, errUnexpected
	}
	return m.SetTypeFunc(ctx, id, t)
}

func (m *mailboxMock) SetReadState(ctx context.Context, id int64, read bool) (mail.Message, error) {
	if m.SetReadStateFunc == nil {
		return mail.Message{}, errUnexpected
	}
	return m.SetReadStateFunc(ctx, id, read)
}

func (m *mailboxMock) Classify(ctx context.Context, id int64) (mail.Message, bool, error) {
	if m.ClassifyFunc == nil {
		return mail.Message{}, false, errUnexpected
	}
	return m.ClassifyFunc(ctx, id)
}

func (m *mailboxMock) SuggestReply(ctx context.Context, id int64, to, cc []string) (string, bool, error) {
	if m.SuggestReplyFunc == nil {
		return "", false, errUnexpected
	}
	return m.SuggestReplyFunc(ctx, id, to, cc)
}

func (m *mailboxMock) Send(ctx context.Context, out mail.Outgoing) (mailsync.SendResult, error) {
	if m.SendFunc == nil {
		return mailsync.SendResult{}, errUnexpected
	}
	return m.SendFunc(ctx, out)
}

func (m *mailboxMock) Reply(ctx context.Context, sourceID int64, body string, to, cc []string, attachments []mail.Attachment) (mailsync.SendResult, error) {
	if m.ReplyFunc == nil {
		return mailsync.SendResult{}, errUnexpected
	}
	return m.ReplyFunc(ctx, sourceID, body, to, cc, attachments)
}

func (m *mailboxMock) SaveDraft(ctx context.Context, id int64, providerDraftID string, out mail.Outgoing) (mailsync.DraftResult, error) {
	if m.SaveDraftFunc == nil {
		return mailsync.DraftResult{}, errUnexpected
	}
	return m.SaveDraftFunc(ctx, id, providerDraftID, out)
}

func (m *mailboxMock) Delete(ctx context.Context, id int64) error {
	if m.DeleteFunc == nil {
		return errUnexpected
	}
	return m.DeleteFunc(ctx, id)
}

type schedulerMock struct {
	RunFunc   func(ctx context.Context, job mailsync.Job) (mailsync.Result, bool)
	StartFunc func(job mailsync.Job) bool
}

func (m *schedulerMock) Run(ctx context.Context, job mailsync.Job) (mailsync.Result, bool) {
	if m.RunFunc == nil {
		return mailsync.Result{}, false
	}
	return m.RunFunc(ctx, job)
}

func (m *schedulerMock) Start(job mailsync.Job) bool {
	if m.StartFunc == nil {
		return false
	}
	return m.StartFunc(job)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "mirror.db"), store.Options{LocalUser: "me@example.com"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func connect(t *testing.T, mirror tool.Mirror, mailbox tool.Mailbox, sched *schedulerMock) *mcp.ClientSession {
	t.Helper()

	server := tool.NewServer(mirror, mailbox, sched, tool.Options{DraftMaxResults: 50})
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()

	require.False(t, result.IsError, result.Content[0].(*mcp.TextContent).Text)

	var out T
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &out))
	return out
}

func errorText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.True(t, result.IsError, "Result should indicate error")
	return result.Content[0].(*mcp.TextContent).Text
}
