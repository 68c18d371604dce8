package mailsync

import (
	"context"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/mail"
)

// DraftAttachments loads the attachments of a provider draft. It returns nil when the provider is
// unavailable or the draft cannot be fetched.
func (s *Service) DraftAttachments(ctx context.Context, providerDraftID string) []mail.Attachment {
	msg := s.draftMessage(ctx, providerDraftID)
	if msg == nil {
		return nil
	}
	return s.extractor.Attachments(ctx, msg.Id, msg.Payload)
}

// DraftAttachmentMetadata lists the attachments of a provider draft without their bytes.
func (s *Service) DraftAttachmentMetadata(ctx context.Context, providerDraftID string) []mail.AttachmentMeta {
	msg := s.draftMessage(ctx, providerDraftID)
	if msg == nil {
		return nil
	}
	return s.extractor.Extract(ctx, msg.Id, msg.Payload).Attachments
}

// MessageAttachments loads the attachments of a provider message.
func (s *Service) MessageAttachments(ctx context.Context, externalID string) []mail.Attachment {
	msg := s.providerMessage(ctx, externalID)
	if msg == nil {
		return nil
	}
	return s.extractor.Attachments(ctx, msg.Id, msg.Payload)
}

// MessageAttachmentMetadata lists the attachments of a provider message without their bytes.
func (s *Service) MessageAttachmentMetadata(ctx context.Context, externalID string) []mail.AttachmentMeta {
	msg := s.providerMessage(ctx, externalID)
	if msg == nil {
		return nil
	}
	return s.extractor.Extract(ctx, msg.Id, msg.Payload).Attachments
}

func (s *Service) draftMessage(ctx context.Context, providerDraftID string) *gmail.Message {
	if strings.TrimSpace(providerDraftID) == "" || !s.available() {
		return nil
	}

	draft, err := s.provider.GetDraft(ctx, providerDraftID)
	if err != nil {
		s.log.WithError(err).WithField("provider_draft_id", providerDraftID).Warn("Fetching draft failed")
		return nil
	}
	return draft.Message
}

func (s *Service) providerMessage(ctx context.Context, externalID string) *gmail.Message {
	if strings.TrimSpace(externalID) == "" || !s.available() {
		return nil
	}

	msg, err := s.provider.GetMessage(ctx, externalID)
	if err != nil {
		s.log.WithError(err).WithField("external_id", externalID).Warn("Fetching message failed")
		return nil
	}
	return msg
}
