package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hal9000y/mailmirror/internal/mail"
)

// Thread returns every message of a conversation, oldest first with the local id as tie-break.
// An empty thread id yields no messages.
func (s *Store) Thread(ctx context.Context, threadID string) ([]mail.Message, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return []mail.Message{}, nil
	}

	msgs, err := selectMessages(ctx, s.db,
		"SELECT "+messageColumns+" FROM email_messages WHERE thread_id = ? ORDER BY received_at ASC, id ASC",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("store.Thread failed: %w: %w", mail.ErrStorage, err)
	}

	return msgs, nil
}

// Filter narrows List results. Zero values do not filter.
type Filter struct {
	Type         mail.Type
	ExcludeTypes []mail.Type
	// Query matches title, sender and body as a substring.
	Query string
	Limit int
}

// List returns messages newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]mail.Message, error) {
	var (
		conditions []string
		args       []any
	)

	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(f.Type))
	}
	if len(f.ExcludeTypes) > 0 {
		placeholders := make([]string, 0, len(f.ExcludeTypes))
		for _, t := range f.ExcludeTypes {
			placeholders = append(placeholders, "?")
			args = append(args, string(t))
		}
		conditions = append(conditions, "type NOT IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		conditions = append(conditions, "(title LIKE ? OR sender LIKE ? OR body LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like, like)
	}

	query := "SELECT " + messageColumns + " FROM email_messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY received_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	msgs, err := selectMessages(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store.List failed: %w: %w", mail.ErrStorage, err)
	}

	return msgs, nil
}

// Get returns the message with local id.
func (s *Store) Get(ctx context.Context, id int64) (mail.Message, error) {
	return s.getBy(ctx, "id = ?", id)
}

// GetByExternalID returns the message carrying the provider message id.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (mail.Message, error) {
	return s.getBy(ctx, "external_id = ?", externalID)
}

// GetByProviderDraftID returns the message carrying the provider draft id.
func (s *Store) GetByProviderDraftID(ctx context.Context, draftID string) (mail.Message, error) {
	return s.getBy(ctx, "provider_draft_id = ?", draftID)
}

func (s *Store) getBy(ctx context.Context, where string, arg any) (mail.Message, error) {
	msg, err := getMessage(ctx, s.db, where, arg)
	if errors.Is(err, mail.ErrNotFound) {
		return mail.Message{}, fmt.Errorf("message %v: %w", arg, mail.ErrNotFound)
	}
	if err != nil {
		return mail.Message{}, fmt.Errorf("%w: %w", mail.ErrStorage, err)
	}
	return msg, nil
}
