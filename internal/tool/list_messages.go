package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailmirror/internal/mail"
	"github.com/hal9000y/mailmirror/internal/store"
)

// ListMessagesRequest filters the local mirror.
type ListMessagesRequest struct {
	Type         string   `json:"type,omitempty" jsonschema:"only messages of this type: read-only, junk-uncertain, junk, response-needed, sent, draft"`
	ExcludeTypes []string `json:"exclude_types,omitempty" jsonschema:"skip messages of these types"`
	Query        string   `json:"query,omitempty" jsonschema:"substring matched against subject, sender and body"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of messages, default 20"`
}

// ListMessagesResponse contains matching messages, newest first.
type ListMessagesResponse struct {
	Messages     []MessageSummary `json:"messages" jsonschema:"array of message summaries"`
	TotalResults int              `json:"total_results" jsonschema:"number of messages returned"`
}

type messageLister interface {
	List(ctx context.Context, f store.Filter) ([]mail.Message, error)
}

func NewListMessages(svc messageLister) *ListMessages {
	return &ListMessages{svc: svc}
}

type ListMessages struct {
	svc messageLister
}

func (t *ListMessages) ListMessages(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListMessagesRequest,
) (*mcp.CallToolResult, ListMessagesResponse, error) {
	filter := store.Filter{
		Query: input.Query,
		Limit: normalizeLimit(input.Limit),
	}

	if input.Type != "" {
		typ, ok := mail.ParseType(input.Type)
		if !ok {
			return nil, ListMessagesResponse{}, fmt.Errorf("unknown type %q: %w", input.Type, mail.ErrValidation)
		}
		filter.Type = typ
	}
	for _, raw := range input.ExcludeTypes {
		typ, ok := mail.ParseType(raw)
		if !ok {
			return nil, ListMessagesResponse{}, fmt.Errorf("unknown type %q: %w", raw, mail.ErrValidation)
		}
		filter.ExcludeTypes = append(filter.ExcludeTypes, typ)
	}

	msgs, err := t.svc.List(ctx, filter)
	if err != nil {
		return nil, ListMessagesResponse{}, fmt.Errorf("svc.List failed: %w", err)
	}

	messages := make([]MessageSummary, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, newMessageSummary(m))
	}

	return nil, ListMessagesResponse{
		Messages:     messages,
		TotalResults: len(messages),
	}, nil
}

// GetThreadRequest names a conversation.
type GetThreadRequest struct {
	ThreadID    string `json:"thread_id" jsonschema:"thread ID"`
	PrimaryOnly bool   `json:"primary_only,omitempty" jsonschema:"leave out sent messages and drafts"`
}

// GetThreadResponse contains the conversation, oldest first.
type GetThreadResponse struct {
	Messages []MessageDetail `json:"messages" jsonschema:"thread messages, oldest first"`
}

type threadReader interface {
	Thread(ctx context.Context, threadID string) ([]mail.Message, error)
}

func NewGetThread(svc threadReader) *GetThread {
	return &GetThread{svc: svc}
}

type GetThread struct {
	svc threadReader
}

func (t *GetThread) GetThread(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetThreadRequest,
) (*mcp.CallToolResult, GetThreadResponse, error) {
	msgs, err := t.svc.Thread(ctx, input.ThreadID)
	if err != nil {
		return nil, GetThreadResponse{}, fmt.Errorf("svc.Thread failed: %w", err)
	}
	if input.PrimaryOnly {
		msgs = mail.Primary(msgs)
	}

	messages := make([]MessageDetail, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, newMessageDetail(m))
	}

	return nil, GetThreadResponse{Messages: messages}, nil
}

// GetMessageRequest names one local message.
type GetMessageRequest struct {
	ID                 int64 `json:"id" jsonschema:"local message ID"`
	IncludeAttachments bool  `json:"include_attachments,omitempty" jsonschema:"look up attachment metadata at the provider"`
}

type messageReader interface {
	Get(ctx context.Context, id int64) (mail.Message, error)
}

type attachmentLister interface {
	MessageAttachmentMetadata(ctx context.Context, externalID string) []mail.AttachmentMeta
	DraftAttachmentMetadata(ctx context.Context, providerDraftID string) []mail.AttachmentMeta
}

func NewGetMessage(svc messageReader, attachments attachmentLister) *GetMessage {
	return &GetMessage{
		svc:         svc,
		attachments: attachments,
	}
}

type GetMessage struct {
	svc         messageReader
	attachments attachmentLister
}

func (t *GetMessage) GetMessage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetMessageRequest,
) (*mcp.CallToolResult, MessageDetail, error) {
	msg, err := t.svc.Get(ctx, input.ID)
	if err != nil {
		return nil, MessageDetail{}, fmt.Errorf("get message %d failed: %w", input.ID, err)
	}

	detail := newMessageDetail(msg)
	if input.IncludeAttachments {
		switch {
		case msg.ProviderDraftID != "":
			detail.Attachments = t.attachments.DraftAttachmentMetadata(ctx, msg.ProviderDraftID)
		case msg.ExternalID != "":
			detail.Attachments = t.attachments.MessageAttachmentMetadata(ctx, msg.ExternalID)
		}
	}

	return nil, detail, nil
}
