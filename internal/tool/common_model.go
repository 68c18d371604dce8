package tool

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/hal9000y/mailmirror/internal/mail"
)

// EmailAddress represents an email address with optional display name.
type EmailAddress struct {
	Name  string `json:"name,omitempty" jsonschema:"the display name"`
	Email string `json:"email" jsonschema:"the email address"`
}

// MessageSummary contains essential message metadata.
type MessageSummary struct {
	ID         int64          `json:"id" jsonschema:"local message ID"`
	ThreadID   string         `json:"thread_id,omitempty" jsonschema:"thread ID"`
	ReceivedAt string         `json:"received_at" jsonschema:"receive time, RFC 3339"`
	From       EmailAddress   `json:"from" jsonschema:"sender information"`
	To         []EmailAddress `json:"to,omitempty" jsonschema:"recipients"`
	CC         []EmailAddress `json:"cc,omitempty" jsonschema:"CC recipients"`
	Subject    string         `json:"subject" jsonschema:"email subject"`
	Summary    string         `json:"summary,omitempty" jsonschema:"short summary"`
	Type       mail.Type      `json:"type" jsonschema:"triage type"`
	Priority   int            `json:"priority" jsonschema:"priority from 1 (low) to 3 (high)"`
	IsRead     bool           `json:"is_read" jsonschema:"whether the message was read"`
}

// MessageDetail is a summary plus content.
type MessageDetail struct {
	Summary         MessageSummary        `json:"summary" jsonschema:"summary"`
	ExternalID      string                `json:"external_id,omitempty" jsonschema:"provider message ID"`
	ProviderDraftID string                `json:"provider_draft_id,omitempty" jsonschema:"provider draft ID"`
	Body            string                `json:"body" jsonschema:"plain text body"`
	Draft           string                `json:"draft,omitempty" jsonschema:"pending reply text"`
	Attachments     []mail.AttachmentMeta `json:"attachments,omitempty" jsonschema:"attachment metadata"`
}

// AttachmentInput is a file supplied by the caller.
type AttachmentInput struct {
	Filename      string `json:"filename,omitempty" jsonschema:"file name"`
	ContentType   string `json:"content_type,omitempty" jsonschema:"MIME type"`
	ContentBase64 string `json:"content_base64" jsonschema:"standard base64 encoded content"`
}

func newMessageSummary(msg mail.Message) MessageSummary {
	return MessageSummary{
		ID:         msg.ID,
		ThreadID:   msg.ThreadID,
		ReceivedAt: msg.ReceivedAt.UTC().Format(time.RFC3339),
		From:       parseEmailAddress(msg.Sender),
		To:         parseEmailAddressList(msg.To),
		CC:         parseEmailAddressList(msg.CC),
		Subject:    msg.Title,
		Summary:    msg.Summary,
		Type:       msg.Type,
		Priority:   msg.Priority,
		IsRead:     msg.IsRead,
	}
}

func newMessageDetail(msg mail.Message) MessageDetail {
	return MessageDetail{
		Summary:         newMessageSummary(msg),
		ExternalID:      msg.ExternalID,
		ProviderDraftID: msg.ProviderDraftID,
		Body:            msg.Body,
		Draft:           msg.Draft,
	}
}

func parseEmailAddress(from string) EmailAddress {
	addr := EmailAddress{}

	if idx := strings.Index(from, "<"); idx != -1 {
		addr.Name = strings.TrimSpace(from[:idx])
		if endIdx := strings.Index(from[idx:], ">"); endIdx != -1 {
			addr.Email = strings.TrimSpace(from[idx+1 : idx+endIdx])
		}
	} else {
		addr.Email = strings.TrimSpace(from)
	}

	addr.Name = strings.Trim(addr.Name, "\"")

	return addr
}

func parseEmailAddressList(addresses []string) []EmailAddress {
	if len(addresses) == 0 {
		return nil
	}

	result := make([]EmailAddress, 0, len(addresses))
	for _, a := range addresses {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			result = append(result, parseEmailAddress(trimmed))
		}
	}

	return result
}

func decodeAttachments(in []AttachmentInput) ([]mail.Attachment, error) {
	if len(in) == 0 {
		return nil, nil
	}

	result := make([]mail.Attachment, 0, len(in))
	for i, a := range in {
		content, err := base64.StdEncoding.DecodeString(a.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("attachment %d: %w: base64: %w", i, mail.ErrValidation, err)
		}
		result = append(result, mail.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     content,
		})
	}

	return result, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 200 {
		return 200
	}
	return limit
}
