// Package store persists the mailbox mirror in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hal9000y/mailmirror/internal/mail"
)

const (
	recipientTo = "to"
	recipientCC = "cc"
)

// Options tune a Store.
type Options struct {
	// LocalUser is the sender of locally composed mail.
	LocalUser string
	// Now overrides the clock, tests only.
	Now func() time.Time
}

// Store is the SQLite-backed message mirror. It is safe for concurrent use.
type Store struct {
	db        *sqlx.DB
	localUser string
	now       func() time.Time
}

// Open opens (or creates) the database at path, enables WAL mode and runs pending migrations.
func Open(path string, opts Options) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// one writer, readers share it as well
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{
		db:        db,
		localUser: opts.LocalUser,
		now:       opts.Now,
	}
	if s.localUser == "" {
		s.localUser = mail.DefaultLocalUser
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// withTx runs fn in a transaction. Any error rolls the transaction back and is reported as mail.ErrStorage
// unless fn already classified it.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", mail.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		if errors.Is(err, mail.ErrNotFound) || errors.Is(err, mail.ErrValidation) || errors.Is(err, mail.ErrStorage) {
			return err
		}
		return fmt.Errorf("%w: %w", mail.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", mail.ErrStorage, err)
	}

	return nil
}

// timestamp returns the clock reading as stored: UTC with second precision.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

const messageColumns = `id, external_id, provider_draft_id, thread_id, title, sender, body, body_html,
	type, priority, is_read, received_at, summary, draft`

type messageRow struct {
	ID              int64          `db:"id"`
	ExternalID      sql.NullString `db:"external_id"`
	ProviderDraftID sql.NullString `db:"provider_draft_id"`
	ThreadID        sql.NullString `db:"thread_id"`
	Title           string         `db:"title"`
	Sender          string         `db:"sender"`
	Body            string         `db:"body"`
	BodyHTML        sql.NullString `db:"body_html"`
	Type            string         `db:"type"`
	Priority        int            `db:"priority"`
	IsRead          bool           `db:"is_read"`
	ReceivedAt      time.Time      `db:"received_at"`
	Summary         sql.NullString `db:"summary"`
	Draft           sql.NullString `db:"draft"`
}

func (r messageRow) toMessage() mail.Message {
	return mail.Message{
		ID:              r.ID,
		ExternalID:      r.ExternalID.String,
		ProviderDraftID: r.ProviderDraftID.String,
		ThreadID:        r.ThreadID.String,
		Title:           r.Title,
		Sender:          r.Sender,
		Body:            r.Body,
		BodyHTML:        r.BodyHTML.String,
		Type:            mail.CoerceType(r.Type),
		Priority:        mail.ClampPriority(r.Priority),
		IsRead:          r.IsRead,
		ReceivedAt:      r.ReceivedAt.UTC(),
		Summary:         r.Summary.String,
		Draft:           r.Draft.String,
	}
}

func nullable(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func getMessage(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (mail.Message, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT "+messageColumns+" FROM email_messages WHERE "+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return mail.Message{}, mail.ErrNotFound
	}
	if err != nil {
		return mail.Message{}, fmt.Errorf("querying message: %w", err)
	}

	msg := row.toMessage()
	if err := attachRecipients(ctx, q, []*mail.Message{&msg}); err != nil {
		return mail.Message{}, err
	}

	return msg, nil
}

func selectMessages(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]mail.Message, error) {
	var rows []messageRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	msgs := make([]mail.Message, len(rows))
	ptrs := make([]*mail.Message, len(rows))
	for i, r := range rows {
		msgs[i] = r.toMessage()
		ptrs[i] = &msgs[i]
	}

	if err := attachRecipients(ctx, q, ptrs); err != nil {
		return nil, err
	}

	return msgs, nil
}

type recipientRow struct {
	EmailID int64  `db:"email_id"`
	Kind    string `db:"recipient_type"`
	Address string `db:"address"`
}

func attachRecipients(ctx context.Context, q sqlx.QueryerContext, msgs []*mail.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	byID := make(map[int64]*mail.Message, len(msgs))
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	query, args, err := sqlx.In(`
		SELECT email_id, recipient_type, address
		FROM email_recipients
		WHERE email_id IN (?)
		ORDER BY email_id, recipient_type, position`, ids)
	if err != nil {
		return fmt.Errorf("building recipients query: %w", err)
	}

	var rows []recipientRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return fmt.Errorf("querying recipients: %w", err)
	}

	for _, r := range rows {
		m := byID[r.EmailID]
		switch r.Kind {
		case recipientTo:
			m.To = append(m.To, r.Address)
		case recipientCC:
			m.CC = append(m.CC, r.Address)
		}
	}

	return nil
}

// replaceRecipients clears and re-inserts both recipient lists of a message.
func replaceRecipients(ctx context.Context, tx *sqlx.Tx, emailID int64, to, cc []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM email_recipients WHERE email_id = ?", emailID); err != nil {
		return fmt.Errorf("clearing recipients of %d: %w", emailID, err)
	}

	for _, group := range []struct {
		kind  string
		addrs []string
	}{{recipientTo, to}, {recipientCC, cc}} {
		for pos, addr := range group.addrs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO email_recipients (email_id, recipient_type, address, position)
				VALUES (?, ?, ?, ?)`,
				emailID, group.kind, addr, pos,
			)
			if err != nil {
				return fmt.Errorf("inserting %s recipient of %d: %w", group.kind, emailID, err)
			}
		}
	}

	return nil
}

// normalizeAddresses runs list entries through the same dedup as raw header values.
func normalizeAddresses(addrs []string) []string {
	return mail.SplitAddresses(strings.Join(addrs, ","))
}
