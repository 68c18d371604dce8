package mailsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/extract"
	"github.com/hal9000y/mailmirror/internal/labels"
	"github.com/hal9000y/mailmirror/internal/mail"
)

const maxPageSize = 100

// SyncRecent mirrors up to maxResults of the newest provider messages, spam and trash listings
// included. Per-message failures are logged and skipped; a listing failure ends the run and is
// returned together with the count synced so far.
func (s *Service) SyncRecent(ctx context.Context, maxResults int) (int, error) {
	if !s.available() {
		return 0, fmt.Errorf("mailsync.SyncRecent failed: %w", mail.ErrProviderUnavailable)
	}

	target := max(1, maxResults)
	log := s.log.WithField("run_id", uuid.NewString())
	start := time.Now()

	var (
		pageToken       string
		synced, visited int
	)

	for visited < target {
		resp, err := s.provider.ListMessages(ctx, "", pageToken, int64(min(maxPageSize, target-visited)), true)
		if err != nil {
			log.WithError(err).WithField("visited", visited).Warn("Listing messages failed, ending run")
			return synced, fmt.Errorf("mailsync.SyncRecent failed: %w", err)
		}
		if len(resp.Messages) == 0 {
			break
		}

		for _, item := range resp.Messages {
			visited++
			if item.Id != "" {
				if _, ok := s.syncMessage(ctx, log, item.Id, ""); ok {
					synced++
				}
			}
			if visited >= target {
				break
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	log.WithFields(logrus.Fields{
		"visited":  visited,
		"synced":   synced,
		"duration": time.Since(start).String(),
	}).Info("Sync run finished")

	return synced, nil
}

// SyncMessage fetches one provider message and reconciles it. It reports false when the provider is
// unavailable, the fetch fails, the message is trashed or the store rejects it.
func (s *Service) SyncMessage(ctx context.Context, externalID string) (int64, bool) {
	if !s.available() || strings.TrimSpace(externalID) == "" {
		return 0, false
	}
	return s.syncMessage(ctx, s.log, externalID, "")
}

func (s *Service) syncMessage(ctx context.Context, log logrus.FieldLogger, externalID, draftID string) (int64, bool) {
	log = log.WithField("external_id", externalID)

	msg, err := s.provider.GetMessage(ctx, externalID)
	if err != nil {
		log.WithError(err).Warn("Fetching message failed")
		return 0, false
	}

	snap, ok := s.snapshot(ctx, msg, draftID)
	if !ok {
		s.dropTrashed(ctx, log, externalID)
		return 0, false
	}

	id, err := s.store.Reconcile(ctx, snap)
	if err != nil {
		log.WithError(err).Warn("Reconciling message failed")
		return 0, false
	}

	return id, true
}

// SyncDrafts mirrors up to maxResults provider drafts. Drafts are always stored as read and of type
// draft. Without a provider it does nothing.
func (s *Service) SyncDrafts(ctx context.Context, maxResults int) (int, error) {
	if !s.available() {
		return 0, nil
	}

	target := max(1, maxResults)
	log := s.log.WithField("run_id", uuid.NewString())

	var (
		pageToken       string
		synced, visited int
	)

	for visited < target {
		resp, err := s.provider.ListDrafts(ctx, pageToken, int64(min(maxPageSize, target-visited)))
		if err != nil {
			log.WithError(err).WithField("visited", visited).Warn("Listing drafts failed, ending run")
			return synced, fmt.Errorf("mailsync.SyncDrafts failed: %w", err)
		}
		if len(resp.Drafts) == 0 {
			break
		}

		for _, ref := range resp.Drafts {
			visited++
			if ref.Id != "" {
				if _, ok := s.syncDraft(ctx, log, ref.Id); ok {
					synced++
				}
			}
			if visited >= target {
				break
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	log.WithFields(logrus.Fields{"visited": visited, "synced": synced}).Info("Draft sync finished")

	return synced, nil
}

func (s *Service) syncDraft(ctx context.Context, log logrus.FieldLogger, draftID string) (int64, bool) {
	log = log.WithField("provider_draft_id", draftID)

	draft, err := s.provider.GetDraft(ctx, draftID)
	if err != nil {
		log.WithError(err).Warn("Fetching draft failed")
		return 0, false
	}
	if draft.Message == nil {
		return 0, false
	}

	snap, ok := s.snapshot(ctx, draft.Message, draftID)
	if !ok {
		return 0, false
	}

	id, err := s.store.Reconcile(ctx, snap)
	if err != nil {
		log.WithError(err).Warn("Reconciling draft failed")
		return 0, false
	}

	return id, true
}

// dropTrashed removes the local copy of a message that was moved to the provider trash.
func (s *Service) dropTrashed(ctx context.Context, log logrus.FieldLogger, externalID string) {
	existing, err := s.store.GetByExternalID(ctx, externalID)
	if errors.Is(err, mail.ErrNotFound) {
		log.Debug("Skipping trashed message")
		return
	}
	if err != nil {
		log.WithError(err).Warn("Looking up trashed message failed")
		return
	}

	if err := s.store.Delete(ctx, existing.ID); err != nil {
		log.WithError(err).Warn("Deleting trashed message failed")
		return
	}
	log.WithField("id", existing.ID).Info("Removed message trashed remotely")
}

// snapshot converts a full provider message. Trashed messages are not mirrored. A non-empty draftID
// marks the snapshot as a draft.
func (s *Service) snapshot(ctx context.Context, msg *gmail.Message, draftID string) (mail.Snapshot, bool) {
	if labels.IsTrashed(msg.LabelIds) {
		return mail.Snapshot{}, false
	}

	content := s.extractor.Extract(ctx, msg.Id, msg.Payload)
	h := extract.ParseHeaders(msg.Payload)

	body := content.Text
	if strings.TrimSpace(body) == "" {
		body = msg.Snippet
	}

	snap := mail.Snapshot{
		ExternalID:      msg.Id,
		ProviderDraftID: draftID,
		ThreadID:        msg.ThreadId,
		Title:           h.Subject,
		Sender:          h.From,
		To:              strings.Join(h.To, ", "),
		CC:              strings.Join(h.CC, ", "),
		Body:            strings.TrimSpace(body),
		BodyHTML:        content.HTML,
		Type:            string(labels.Type(msg.LabelIds)),
		Priority:        labels.Priority(msg.LabelIds),
		IsRead:          labels.IsRead(msg.LabelIds),
		ReceivedAt:      receivedAt(msg.InternalDate, h.Date),
	}

	if draftID != "" {
		snap.Type = string(mail.TypeDraft)
		snap.IsRead = true
	}

	return snap, true
}

// receivedAt prefers the provider's internal date in milliseconds and falls back to the Date header.
// A zero result lets the store stamp the current time.
func receivedAt(internalDate int64, header time.Time) time.Time {
	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC()
	}
	if !header.IsZero() {
		return header.UTC()
	}
	return time.Time{}
}
