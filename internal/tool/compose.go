package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailmirror/internal/mail"
	"github.com/hal9000y/mailmirror/internal/mailsync"
)

// SendMessageRequest describes a new outgoing message.
type SendMessageRequest struct {
	To          []string          `json:"to" jsonschema:"recipients"`
	CC          []string          `json:"cc,omitempty" jsonschema:"CC recipients"`
	Subject     string            `json:"subject,omitempty" jsonschema:"subject"`
	Body        string            `json:"body,omitempty" jsonschema:"plain text body"`
	ThreadID    string            `json:"thread_id,omitempty" jsonschema:"existing thread to send into"`
	Attachments []AttachmentInput `json:"attachments,omitempty" jsonschema:"files to attach"`
}

type messageSender interface {
	Send(ctx context.Context, out mail.Outgoing) (mailsync.SendResult, error)
}

func NewSendMessage(svc messageSender) *SendMessage {
	return &SendMessage{svc: svc}
}

// SendMessage delivers mail through the provider, keeping a local copy when it cannot.
type SendMessage struct {
	svc messageSender
}

func (t *SendMessage) SendMessage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SendMessageRequest,
) (*mcp.CallToolResult, mailsync.SendResult, error) {
	attachments, err := decodeAttachments(input.Attachments)
	if err != nil {
		return nil, mailsync.SendResult{}, err
	}

	res, err := t.svc.Send(ctx, mail.Outgoing{
		To:          input.To,
		CC:          input.CC,
		Title:       input.Subject,
		Body:        input.Body,
		ThreadID:    input.ThreadID,
		Attachments: attachments,
	})
	if err != nil {
		return nil, mailsync.SendResult{}, fmt.Errorf("svc.Send failed: %w", err)
	}

	return nil, res, nil
}

// SendReplyRequest answers a stored message in its thread.
type SendReplyRequest struct {
	ID          int64             `json:"id" jsonschema:"local ID of the message being answered"`
	Body        string            `json:"body,omitempty" jsonschema:"reply text, the pending draft text when omitted"`
	To          []string          `json:"to" jsonschema:"recipients"`
	CC          []string          `json:"cc,omitempty" jsonschema:"CC recipients"`
	Attachments []AttachmentInput `json:"attachments,omitempty" jsonschema:"files to attach"`
}

type replySender interface {
	Reply(ctx context.Context, sourceID int64, body string, to, cc []string, attachments []mail.Attachment) (mailsync.SendResult, error)
}

func NewSendReply(svc replySender, messages messageReader) *SendReply {
	return &SendReply{
		svc:      svc,
		messages: messages,
	}
}

type SendReply struct {
	svc      replySender
	messages messageReader
}

func (t *SendReply) SendReply(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SendReplyRequest,
) (*mcp.CallToolResult, mailsync.SendResult, error) {
	attachments, err := decodeAttachments(input.Attachments)
	if err != nil {
		return nil, mailsync.SendResult{}, err
	}

	body := input.Body
	if body == "" {
		msg, err := t.messages.Get(ctx, input.ID)
		if err != nil {
			return nil, mailsync.SendResult{}, fmt.Errorf("get message %d failed: %w", input.ID, err)
		}
		body = msg.Draft
	}

	res, err := t.svc.Reply(ctx, input.ID, body, input.To, input.CC, attachments)
	if err != nil {
		return nil, mailsync.SendResult{}, fmt.Errorf("svc.Reply failed: %w", err)
	}

	return nil, res, nil
}

// SaveDraftRequest creates or updates a draft.
type SaveDraftRequest struct {
	ID              int64             `json:"id,omitempty" jsonschema:"local draft ID, omitted for a new draft"`
	ProviderDraftID string            `json:"provider_draft_id,omitempty" jsonschema:"provider draft ID"`
	To              []string          `json:"to,omitempty" jsonschema:"recipients"`
	CC              []string          `json:"cc,omitempty" jsonschema:"CC recipients"`
	Subject         string            `json:"subject,omitempty" jsonschema:"subject"`
	Body            string            `json:"body,omitempty" jsonschema:"plain text body"`
	ThreadID        string            `json:"thread_id,omitempty" jsonschema:"thread the draft belongs to"`
	Attachments     []AttachmentInput `json:"attachments,omitempty" jsonschema:"files to add, existing provider attachments are kept"`
}

type draftSaver interface {
	SaveDraft(ctx context.Context, id int64, providerDraftID string, out mail.Outgoing) (mailsync.DraftResult, error)
}

func NewSaveDraft(svc draftSaver) *SaveDraft {
	return &SaveDraft{svc: svc}
}

type SaveDraft struct {
	svc draftSaver
}

func (t *SaveDraft) SaveDraft(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SaveDraftRequest,
) (*mcp.CallToolResult, mailsync.DraftResult, error) {
	attachments, err := decodeAttachments(input.Attachments)
	if err != nil {
		return nil, mailsync.DraftResult{}, err
	}

	res, err := t.svc.SaveDraft(ctx, input.ID, input.ProviderDraftID, mail.Outgoing{
		To:          input.To,
		CC:          input.CC,
		Title:       input.Subject,
		Body:        input.Body,
		ThreadID:    input.ThreadID,
		Attachments: attachments,
	})
	if err != nil {
		return nil, mailsync.DraftResult{}, fmt.Errorf("svc.SaveDraft failed: %w", err)
	}

	return nil, res, nil
}

// DeleteMessageRequest names the message to remove.
type DeleteMessageRequest struct {
	ID int64 `json:"id" jsonschema:"local message ID"`
}

// DeleteMessageResponse confirms the removal.
type DeleteMessageResponse struct {
	Deleted bool `json:"deleted" jsonschema:"true once the message is gone locally"`
}

type messageDeleter interface {
	Delete(ctx context.Context, id int64) error
}

func NewDeleteMessage(svc messageDeleter) *DeleteMessage {
	return &DeleteMessage{svc: svc}
}

// DeleteMessage trashes a message at the provider when possible and removes it locally. Drafts are
// deleted at the provider instead.
type DeleteMessage struct {
	svc messageDeleter
}

func (t *DeleteMessage) DeleteMessage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteMessageRequest,
) (*mcp.CallToolResult, DeleteMessageResponse, error) {
	if err := t.svc.Delete(ctx, input.ID); err != nil {
		return nil, DeleteMessageResponse{}, fmt.Errorf("svc.Delete failed: %w", err)
	}

	return nil, DeleteMessageResponse{Deleted: true}, nil
}
