package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hal9000y/mailmirror/internal/mail"
)

// MarkRead sets the read flag of a message.
func (s *Store) MarkRead(ctx context.Context, id int64, read bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE email_messages SET is_read = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", read, id)
	if err != nil {
		return fmt.Errorf("store.MarkRead failed: %w: %w", mail.ErrStorage, err)
	}
	if err := expectOne(res, id); err != nil {
		return fmt.Errorf("store.MarkRead failed: %w", err)
	}
	return nil
}

// ToggleRead flips the read flag and returns the new state.
func (s *Store) ToggleRead(ctx context.Context, id int64) (bool, error) {
	var read bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE email_messages SET is_read = 1 - is_read, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("toggling read state: %w", err)
		}
		if err := expectOne(res, id); err != nil {
			return err
		}
		return tx.GetContext(ctx, &read, "SELECT is_read FROM email_messages WHERE id = ?", id)
	})
	if err != nil {
		return false, fmt.Errorf("store.ToggleRead failed: %w", err)
	}
	return read, nil
}

// SetType stores a triage type chosen by the user.
func (s *Store) SetType(ctx context.Context, id int64, t mail.Type) error {
	if !t.Valid() {
		return fmt.Errorf("store.SetType failed: %w: unknown type %q", mail.ErrValidation, t)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE email_messages SET type = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(t), id)
	if err != nil {
		return fmt.Errorf("store.SetType failed: %w: %w", mail.ErrStorage, err)
	}
	if err := expectOne(res, id); err != nil {
		return fmt.Errorf("store.SetType failed: %w", err)
	}
	return nil
}

// UpdateDraft stores the locally composed reply text of a message. Empty text clears it.
func (s *Store) UpdateDraft(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE email_messages SET draft = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", nullable(text), id)
	if err != nil {
		return fmt.Errorf("store.UpdateDraft failed: %w: %w", mail.ErrStorage, err)
	}
	if err := expectOne(res, id); err != nil {
		return fmt.Errorf("store.UpdateDraft failed: %w", err)
	}
	return nil
}

// AIFields holds classifier output. Nil fields are left untouched.
type AIFields struct {
	Summary  *string
	Type     *mail.Type
	Priority *int
}

// UpdateAIFields applies classifier output to a message.
func (s *Store) UpdateAIFields(ctx context.Context, id int64, f AIFields) error {
	var (
		assignments []string
		args        []any
	)

	if f.Summary != nil {
		assignments = append(assignments, "summary = ?")
		args = append(args, nullable(*f.Summary))
	}
	if f.Type != nil {
		if !f.Type.Valid() {
			return fmt.Errorf("store.UpdateAIFields failed: %w: unknown type %q", mail.ErrValidation, *f.Type)
		}
		assignments = append(assignments, "type = ?")
		args = append(args, string(*f.Type))
	}
	if f.Priority != nil {
		assignments = append(assignments, "priority = ?")
		args = append(args, mail.ClampPriority(*f.Priority))
	}

	if len(assignments) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE email_messages SET "+strings.Join(assignments, ", ")+", updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("store.UpdateAIFields failed: %w: %w", mail.ErrStorage, err)
	}
	if err := expectOne(res, id); err != nil {
		return fmt.Errorf("store.UpdateAIFields failed: %w", err)
	}
	return nil
}

// Delete removes a message and its recipients. Deleting a missing message is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM email_messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("store.Delete failed: %w: %w", mail.ErrStorage, err)
	}
	return nil
}

// CreateReply records a reply sent outside the provider. It joins the source thread, or opens
// "thread-<source id>" when the source has none, and inherits the source priority.
func (s *Store) CreateReply(ctx context.Context, sourceID int64, body string, to, cc []string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		source, err := getMessage(ctx, tx, "id = ?", sourceID)
		if err != nil {
			return fmt.Errorf("source message %d: %w", sourceID, err)
		}

		threadID := source.ThreadID
		if threadID == "" {
			threadID = fmt.Sprintf("thread-%d", sourceID)
		}

		id, err = insertMessage(ctx, tx, mail.Message{
			ThreadID:   threadID,
			Title:      mail.ReplySubject(source.Title),
			Sender:     s.localUser,
			Body:       body,
			Type:       mail.TypeSent,
			Priority:   mail.ClampPriority(source.Priority),
			IsRead:     true,
			ReceivedAt: s.timestamp(),
		})
		if err != nil {
			return err
		}

		return replaceRecipients(ctx, tx, id, normalizeAddresses(to), normalizeAddresses(cc))
	})
	if err != nil {
		return 0, fmt.Errorf("store.CreateReply failed: %w", err)
	}

	return id, nil
}

// SaveLocalDraft creates or updates a draft. The target is the message with id when it exists,
// otherwise the message carrying providerDraftID, otherwise a new record.
func (s *Store) SaveLocalDraft(ctx context.Context, id int64, providerDraftID string, out mail.Outgoing) (int64, error) {
	var draftID int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var (
			found bool
			err   error
		)
		if id > 0 {
			var ids []int64
			if err := tx.SelectContext(ctx, &ids, "SELECT id FROM email_messages WHERE id = ?", id); err != nil {
				return fmt.Errorf("looking up draft %d: %w", id, err)
			}
			if len(ids) > 0 {
				draftID, found = ids[0], true
			}
		}
		if !found && strings.TrimSpace(providerDraftID) != "" {
			draftID, found, err = resolve(ctx, tx, "", providerDraftID)
			if err != nil {
				return err
			}
		}

		record := mail.Message{
			ProviderDraftID: strings.TrimSpace(providerDraftID),
			ThreadID:        strings.TrimSpace(out.ThreadID),
			Title:           out.CleanTitle(),
			Sender:          s.localUser,
			Body:            out.Body,
			Type:            mail.TypeDraft,
			Priority:        mail.MinPriority,
			IsRead:          true,
			ReceivedAt:      s.timestamp(),
		}

		if found {
			_, err = tx.ExecContext(ctx, `
				UPDATE email_messages SET
					provider_draft_id = COALESCE(?, provider_draft_id),
					thread_id = ?, title = ?, sender = ?, body = ?,
					type = ?, is_read = 1, received_at = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				nullable(record.ProviderDraftID),
				nullable(record.ThreadID), record.Title, record.Sender, record.Body,
				string(mail.TypeDraft), record.ReceivedAt,
				draftID,
			)
			if err != nil {
				return fmt.Errorf("updating draft %d: %w", draftID, err)
			}
		} else {
			draftID, err = insertMessage(ctx, tx, record)
			if err != nil {
				return err
			}
		}

		return replaceRecipients(ctx, tx, draftID, normalizeAddresses(out.To), normalizeAddresses(out.CC))
	})
	if err != nil {
		return 0, fmt.Errorf("store.SaveLocalDraft failed: %w", err)
	}

	return draftID, nil
}

// CreateLocalSent records a sent message that has no provider copy.
func (s *Store) CreateLocalSent(ctx context.Context, out mail.Outgoing) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = insertMessage(ctx, tx, mail.Message{
			ThreadID:   strings.TrimSpace(out.ThreadID),
			Title:      out.CleanTitle(),
			Sender:     s.localUser,
			Body:       out.Body,
			Type:       mail.TypeSent,
			Priority:   mail.MinPriority,
			IsRead:     true,
			ReceivedAt: s.timestamp(),
		})
		if err != nil {
			return err
		}

		return replaceRecipients(ctx, tx, id, normalizeAddresses(out.To), normalizeAddresses(out.CC))
	})
	if err != nil {
		return 0, fmt.Errorf("store.CreateLocalSent failed: %w", err)
	}

	return id, nil
}

// LocalUser returns the sender address used for locally composed mail.
func (s *Store) LocalUser() string {
	return s.localUser
}
