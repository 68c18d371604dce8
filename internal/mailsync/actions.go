package mailsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/labels"
	"github.com/hal9000y/mailmirror/internal/mail"
	"github.com/hal9000y/mailmirror/internal/store"
)

// SetReadState updates the read flag locally and mirrors it to the provider when the message is
// known remotely.
func (s *Service) SetReadState(ctx context.Context, id int64, read bool) (mail.Message, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return mail.Message{}, fmt.Errorf("mailsync.SetReadState failed: %w", err)
	}
	if err := s.store.MarkRead(ctx, id, read); err != nil {
		return mail.Message{}, fmt.Errorf("mailsync.SetReadState failed: %w", err)
	}

	s.pushLabels(ctx, msg, labels.ForReadState(read))

	return s.reload(ctx, id)
}

// SetType records a triage decision locally, then moves the provider labels when the type has a
// label mapping and the message is known remotely.
func (s *Service) SetType(ctx context.Context, id int64, t mail.Type) (mail.Message, error) {
	if !t.Valid() {
		return mail.Message{}, fmt.Errorf("mailsync.SetType failed: %w: unknown type %q", mail.ErrValidation, t)
	}

	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return mail.Message{}, fmt.Errorf("mailsync.SetType failed: %w", err)
	}
	if err := s.store.SetType(ctx, id, t); err != nil {
		return mail.Message{}, fmt.Errorf("mailsync.SetType failed: %w", err)
	}

	if delta, ok := labels.ForType(t); ok {
		s.pushLabels(ctx, msg, delta)
	}

	return s.reload(ctx, id)
}

// pushLabels applies delta remotely and re-mirrors the message. Failures are logged only, the local
// change stands.
func (s *Service) pushLabels(ctx context.Context, msg mail.Message, delta labels.Delta) {
	if msg.ExternalID == "" || delta.Empty() || !s.available() {
		return
	}

	log := s.log.WithFields(logrus.Fields{"id": msg.ID, "external_id": msg.ExternalID})
	if err := s.provider.ModifyLabels(ctx, msg.ExternalID, delta.Add, delta.Remove); err != nil {
		log.WithError(err).Warn("Updating provider labels failed")
		return
	}

	s.syncMessage(ctx, log, msg.ExternalID, msg.ProviderDraftID)
}

// SendResult describes where a sent message ended up.
type SendResult struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Delivered  bool   `json:"delivered"`
}

// Send delivers a new message. Without a provider, or when delivery fails, the message is kept as a
// local sent record so its content is not lost.
func (s *Service) Send(ctx context.Context, out mail.Outgoing) (SendResult, error) {
	if len(nonBlank(out.To)) == 0 {
		return SendResult{}, fmt.Errorf("mailsync.Send failed: %w: no recipients", mail.ErrValidation)
	}

	res, err := s.deliver(ctx, out, func(ctx context.Context) (int64, error) {
		return s.store.CreateLocalSent(ctx, out)
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("mailsync.Send failed: %w", err)
	}

	return res, nil
}

// Reply answers a stored message within its thread and clears the message's pending reply text.
func (s *Service) Reply(ctx context.Context, sourceID int64, body string, to, cc []string, attachments []mail.Attachment) (SendResult, error) {
	if strings.TrimSpace(body) == "" {
		return SendResult{}, fmt.Errorf("mailsync.Reply failed: %w: empty reply", mail.ErrValidation)
	}
	if len(nonBlank(to)) == 0 {
		return SendResult{}, fmt.Errorf("mailsync.Reply failed: %w: no recipients", mail.ErrValidation)
	}

	source, err := s.store.Get(ctx, sourceID)
	if err != nil {
		return SendResult{}, fmt.Errorf("mailsync.Reply failed: %w", err)
	}

	out := mail.Outgoing{
		To:          to,
		CC:          cc,
		Title:       mail.ReplySubject(source.Title),
		Body:        body,
		ThreadID:    source.ThreadID,
		Attachments: attachments,
	}

	res, err := s.deliver(ctx, out, func(ctx context.Context) (int64, error) {
		return s.store.CreateReply(ctx, sourceID, body, to, cc)
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("mailsync.Reply failed: %w", err)
	}

	if err := s.store.UpdateDraft(ctx, sourceID, ""); err != nil {
		s.log.WithError(err).WithField("id", sourceID).Warn("Clearing reply draft failed")
	}

	return res, nil
}

// deliver sends out through the provider. keepLocal stores the message when the provider is
// unavailable, the message cannot be composed or the provider rejects it. Once the provider returned an id the local copy is always keyed by it.
func (s *Service) deliver(ctx context.Context, out mail.Outgoing, keepLocal func(context.Context) (int64, error)) (SendResult, error) {
	if !s.available() {
		id, err := keepLocal(ctx)
		return SendResult{ID: id}, err
	}

	raw, err := compose(out, s.store.LocalUser(), time.Now())
	if err != nil {
		s.log.WithError(err).Warn("Composing message failed, keeping local copy")
		id, err := keepLocal(ctx)
		return SendResult{ID: id}, err
	}

	sent, err := s.provider.Send(ctx, raw, strings.TrimSpace(out.ThreadID))
	if err != nil {
		s.log.WithError(err).Warn("Sending through provider failed, keeping local copy")
		id, err := keepLocal(ctx)
		return SendResult{ID: id}, err
	}

	log := s.log.WithField("external_id", sent.Id)
	if sent.Id == "" {
		log.Warn("Provider accepted message without an id, keeping local copy")
		id, err := keepLocal(ctx)
		return SendResult{ID: id, Delivered: true}, err
	}

	if id, ok := s.syncMessage(ctx, log, sent.Id, ""); ok {
		return SendResult{ID: id, ExternalID: sent.Id, Delivered: true}, nil
	}

	threadID := sent.ThreadId
	if threadID == "" {
		threadID = out.ThreadID
	}
	id, err := s.store.Reconcile(ctx, mail.Snapshot{
		ExternalID: sent.Id,
		ThreadID:   threadID,
		Title:      out.CleanTitle(),
		Sender:     s.store.LocalUser(),
		To:         strings.Join(out.To, ", "),
		CC:         strings.Join(out.CC, ", "),
		Body:       out.Body,
		Type:       string(mail.TypeSent),
		IsRead:     true,
	})
	if err != nil {
		return SendResult{ExternalID: sent.Id, Delivered: true}, err
	}

	return SendResult{ID: id, ExternalID: sent.Id, Delivered: true}, nil
}

// DraftResult describes a saved draft.
type DraftResult struct {
	ID              int64  `json:"id"`
	ProviderDraftID string `json:"provider_draft_id,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	Synced          bool   `json:"synced"`
}

// SaveDraft creates or updates a draft. id is the local draft, providerDraftID the remote one; either
// may be empty. Attachments already on the remote draft are kept next to the new ones. Without a
// provider, when the draft cannot be composed or when the provider fails, the draft is saved locally only.
func (s *Service) SaveDraft(ctx context.Context, id int64, providerDraftID string, out mail.Outgoing) (DraftResult, error) {
	providerDraftID = strings.TrimSpace(providerDraftID)
	if providerDraftID == "" && id > 0 {
		if existing, err := s.store.Get(ctx, id); err == nil {
			providerDraftID = existing.ProviderDraftID
		} else if !errors.Is(err, mail.ErrNotFound) {
			return DraftResult{}, fmt.Errorf("mailsync.SaveDraft failed: %w", err)
		}
	}

	saveLocal := func() (DraftResult, error) {
		localID, err := s.store.SaveLocalDraft(ctx, id, providerDraftID, out)
		if err != nil {
			return DraftResult{}, fmt.Errorf("mailsync.SaveDraft failed: %w", err)
		}
		return DraftResult{ID: localID, ProviderDraftID: providerDraftID}, nil
	}

	if !s.available() {
		return saveLocal()
	}

	log := s.log.WithField("provider_draft_id", providerDraftID)

	attachments := out.Attachments
	if providerDraftID != "" {
		attachments = mail.MergeAttachments(s.DraftAttachments(ctx, providerDraftID), out.Attachments)
	}
	withAttachments := out
	withAttachments.Attachments = attachments

	raw, err := compose(withAttachments, s.store.LocalUser(), time.Now())
	if err != nil {
		log.WithError(err).Warn("Composing draft failed, saving locally")
		return saveLocal()
	}

	var draft *gmail.Draft
	threadID := strings.TrimSpace(out.ThreadID)
	if providerDraftID != "" {
		draft, err = s.provider.UpdateDraft(ctx, providerDraftID, raw, threadID)
	} else {
		draft, err = s.provider.CreateDraft(ctx, raw, threadID)
	}
	if err == nil && (draft == nil || draft.Id == "") {
		err = errors.New("provider returned a draft without id")
	}
	if err != nil {
		log.WithError(err).Warn("Saving provider draft failed, saving locally")
		return saveLocal()
	}

	providerDraftID = draft.Id
	var messageID string
	if draft.Message != nil {
		messageID = draft.Message.Id
	}

	// attach the provider id to the local record first so the reconcile below finds it
	localID, err := s.store.SaveLocalDraft(ctx, id, providerDraftID, out)
	if err != nil {
		return DraftResult{}, fmt.Errorf("mailsync.SaveDraft failed: %w", err)
	}

	result := DraftResult{ID: localID, ProviderDraftID: providerDraftID, ExternalID: messageID}
	if synced, ok := s.syncDraft(ctx, log.WithField("provider_draft_id", providerDraftID), providerDraftID); ok {
		result.ID = synced
		result.Synced = true
	}

	return result, nil
}

// DeleteDraft removes a draft locally and, best effort, remotely.
func (s *Service) DeleteDraft(ctx context.Context, id int64) error {
	msg, err := s.store.Get(ctx, id)
	if errors.Is(err, mail.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mailsync.DeleteDraft failed: %w", err)
	}

	if msg.ProviderDraftID != "" && s.available() {
		if err := s.provider.DeleteDraft(ctx, msg.ProviderDraftID); err != nil {
			s.log.WithError(err).WithField("provider_draft_id", msg.ProviderDraftID).Warn("Deleting provider draft failed")
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("mailsync.DeleteDraft failed: %w", err)
	}
	return nil
}

// Delete moves a message to the provider trash, best effort, and removes it locally. Drafts are
// deleted through DeleteDraft.
func (s *Service) Delete(ctx context.Context, id int64) error {
	msg, err := s.store.Get(ctx, id)
	if errors.Is(err, mail.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mailsync.Delete failed: %w", err)
	}

	if msg.ProviderDraftID != "" {
		return s.DeleteDraft(ctx, id)
	}

	if msg.ExternalID != "" && s.available() {
		if err := s.provider.Trash(ctx, msg.ExternalID); err != nil {
			s.log.WithError(err).WithField("external_id", msg.ExternalID).Warn("Trashing provider message failed")
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("mailsync.Delete failed: %w", err)
	}
	return nil
}

// Classify stores the classifier's summary, type and priority. applied is false when the classifier
// had nothing to offer.
func (s *Service) Classify(ctx context.Context, id int64) (msg mail.Message, applied bool, err error) {
	msg, err = s.store.Get(ctx, id)
	if err != nil {
		return mail.Message{}, false, fmt.Errorf("mailsync.Classify failed: %w", err)
	}
	if s.classifier == nil {
		return msg, false, nil
	}

	suggestion, ok := s.classifier.Analyze(ctx, msg)
	if !ok {
		return msg, false, nil
	}

	if err := s.store.UpdateAIFields(ctx, id, store.AIFields{
		Summary:  &suggestion.Summary,
		Type:     &suggestion.Type,
		Priority: &suggestion.Priority,
	}); err != nil {
		return msg, false, fmt.Errorf("mailsync.Classify failed: %w", err)
	}

	msg, err = s.reload(ctx, id)
	return msg, err == nil, err
}

// SuggestReply asks the classifier for reply text and keeps it as the message's pending reply.
func (s *Service) SuggestReply(ctx context.Context, id int64, to, cc []string) (string, bool, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("mailsync.SuggestReply failed: %w", err)
	}
	if s.classifier == nil {
		return "", false, nil
	}

	if len(to) == 0 && msg.Sender != "" && msg.Sender != mail.DefaultSender {
		to = []string{msg.Sender}
	}

	text, ok := s.classifier.GenerateReply(ctx, msg, to, cc, msg.Draft)
	if !ok {
		return "", false, nil
	}

	if err := s.store.UpdateDraft(ctx, id, text); err != nil {
		return "", false, fmt.Errorf("mailsync.SuggestReply failed: %w", err)
	}

	return text, true, nil
}

func (s *Service) reload(ctx context.Context, id int64) (mail.Message, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return mail.Message{}, fmt.Errorf("store.Get failed: %w", err)
	}
	return msg, nil
}

func nonBlank(values []string) []string {
	var result []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			result = append(result, v)
		}
	}
	return result
}
