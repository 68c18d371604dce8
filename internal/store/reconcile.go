package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hal9000y/mailmirror/internal/mail"
)

// Resolve finds the local record matching a remote identity: external id first, then provider draft id.
func (s *Store) Resolve(ctx context.Context, externalID, providerDraftID string) (int64, bool, error) {
	id, found, err := resolve(ctx, s.db, externalID, providerDraftID)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", mail.ErrStorage, err)
	}
	return id, found, nil
}

func resolve(ctx context.Context, q sqlx.QueryerContext, externalID, providerDraftID string) (int64, bool, error) {
	for _, key := range []struct {
		column string
		value  string
	}{
		{"external_id", externalID},
		{"provider_draft_id", providerDraftID},
	} {
		value := strings.TrimSpace(key.value)
		if value == "" {
			continue
		}

		var ids []int64
		err := sqlx.SelectContext(ctx, q, &ids, "SELECT id FROM email_messages WHERE "+key.column+" = ? LIMIT 1", value)
		if err != nil {
			return 0, false, fmt.Errorf("resolving by %s: %w", key.column, err)
		}
		if len(ids) > 0 {
			return ids[0], true, nil
		}
	}

	return 0, false, nil
}

// Reconcile applies a provider snapshot onto the mirror and returns the local id of the message.
// Message row and recipients are written in one transaction.
func (s *Store) Reconcile(ctx context.Context, snap mail.Snapshot) (int64, error) {
	if !snap.HasIdentity() {
		return 0, fmt.Errorf("store.Reconcile failed: %w: snapshot has neither external_id nor provider_draft_id", mail.ErrValidation)
	}

	incoming := s.normalizeSnapshot(snap)

	var id int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		existingID, found, err := resolve(ctx, tx, incoming.ExternalID, incoming.ProviderDraftID)
		if err != nil {
			return err
		}

		if !found {
			id, err = insertMessage(ctx, tx, incoming)
			if err != nil {
				return err
			}
		} else {
			existing, err := getMessage(ctx, tx, "id = ?", existingID)
			if err != nil {
				return fmt.Errorf("loading message %d: %w", existingID, err)
			}

			merged := mergeRecord(existing, incoming)
			if err := updateMessage(ctx, tx, merged); err != nil {
				return err
			}
			id = existingID
		}

		return replaceRecipients(ctx, tx, id, incoming.To, incoming.CC)
	})
	if err != nil {
		return 0, fmt.Errorf("store.Reconcile failed: %w", err)
	}

	return id, nil
}

// normalizeSnapshot applies the ingestion defaults. Priority 0 means the snapshot carried none.
func (s *Store) normalizeSnapshot(snap mail.Snapshot) mail.Message {
	msg := mail.Message{
		ExternalID:      strings.TrimSpace(snap.ExternalID),
		ProviderDraftID: strings.TrimSpace(snap.ProviderDraftID),
		ThreadID:        strings.TrimSpace(snap.ThreadID),
		Title:           strings.TrimSpace(snap.Title),
		Sender:          strings.TrimSpace(snap.Sender),
		To:              mail.SplitAddresses(snap.To),
		CC:              mail.SplitAddresses(snap.CC),
		Body:            snap.Body,
		BodyHTML:        snap.BodyHTML,
		Type:            mail.CoerceType(snap.Type),
		Priority:        mail.ClampPriority(snap.Priority),
		IsRead:          snap.IsRead,
		ReceivedAt:      snap.ReceivedAt.UTC().Truncate(time.Second),
		Summary:         snap.Summary,
		Draft:           snap.Draft,
	}

	if msg.Title == "" {
		msg.Title = mail.DefaultTitle
	}
	if msg.Sender == "" {
		msg.Sender = mail.DefaultSender
	}
	if snap.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.timestamp()
	}

	return msg
}

// mergeRecord overlays incoming onto existing. The remote snapshot is the base; user-owned fields and
// triage decisions of the existing record survive as described per field below.
func mergeRecord(existing, incoming mail.Message) mail.Message {
	merged := incoming
	merged.ID = existing.ID

	if strings.TrimSpace(existing.Summary) != "" {
		merged.Summary = existing.Summary
	}
	if strings.TrimSpace(existing.Draft) != "" {
		merged.Draft = existing.Draft
	}
	if incoming.BodyHTML == "" {
		merged.BodyHTML = existing.BodyHTML
	}
	if merged.ProviderDraftID == "" {
		merged.ProviderDraftID = existing.ProviderDraftID
	}
	if merged.ExternalID == "" {
		merged.ExternalID = existing.ExternalID
	}

	// the stored priority is never null, so it always wins
	merged.Priority = mail.ClampPriority(existing.Priority)
	merged.Type = stableType(existing.Type, incoming.Type)

	return merged
}

// stableType keeps a manual or pending triage decision when the remote side only toggled read state.
func stableType(existing, incoming mail.Type) mail.Type {
	passive := incoming == mail.TypeResponseNeeded || incoming == mail.TypeReadOnly
	if !passive {
		return incoming
	}

	switch existing {
	case mail.TypeResponseNeeded, mail.TypeReadOnly, mail.TypeJunkUncertain:
		return existing
	default:
		return incoming
	}
}

func insertMessage(ctx context.Context, tx *sqlx.Tx, m mail.Message) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO email_messages (
			external_id, provider_draft_id, thread_id,
			title, sender, body, body_html,
			type, priority, is_read, received_at,
			summary, draft
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullable(m.ExternalID), nullable(m.ProviderDraftID), nullable(m.ThreadID),
		m.Title, m.Sender, m.Body, nullable(m.BodyHTML),
		string(m.Type), m.Priority, m.IsRead, m.ReceivedAt,
		nullable(m.Summary), nullable(m.Draft),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	return id, nil
}

func updateMessage(ctx context.Context, tx *sqlx.Tx, m mail.Message) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE email_messages SET
			external_id = ?, provider_draft_id = ?, thread_id = ?,
			title = ?, sender = ?, body = ?, body_html = ?,
			type = ?, priority = ?, is_read = ?, received_at = ?,
			summary = ?, draft = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		nullable(m.ExternalID), nullable(m.ProviderDraftID), nullable(m.ThreadID),
		m.Title, m.Sender, m.Body, nullable(m.BodyHTML),
		string(m.Type), m.Priority, m.IsRead, m.ReceivedAt,
		nullable(m.Summary), nullable(m.Draft),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating message %d: %w", m.ID, err)
	}

	return expectOne(res, m.ID)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOne(res rowsAffecter, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", id, mail.ErrNotFound)
	}
	return nil
}
