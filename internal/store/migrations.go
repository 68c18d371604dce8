package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS email_messages (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id       TEXT UNIQUE,
	provider_draft_id TEXT UNIQUE,
	thread_id         TEXT,
	title             TEXT NOT NULL,
	sender            TEXT NOT NULL,
	body              TEXT NOT NULL DEFAULT '',
	body_html         TEXT,
	type              TEXT NOT NULL DEFAULT 'read-only'
		CHECK(type IN ('response-needed', 'read-only', 'junk', 'junk-uncertain', 'sent', 'draft')),
	priority          INTEGER NOT NULL DEFAULT 1 CHECK(priority BETWEEN 1 AND 3),
	is_read           INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	received_at       DATETIME NOT NULL,
	summary           TEXT,
	draft             TEXT,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_recipients (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id       INTEGER NOT NULL REFERENCES email_messages(id) ON DELETE CASCADE,
	recipient_type TEXT NOT NULL CHECK(recipient_type IN ('to', 'cc')),
	address        TEXT NOT NULL,
	position       INTEGER NOT NULL,
	UNIQUE(email_id, recipient_type, address COLLATE NOCASE)
);

CREATE INDEX IF NOT EXISTS idx_email_messages_thread ON email_messages(thread_id, received_at);
CREATE INDEX IF NOT EXISTS idx_email_messages_received ON email_messages(received_at);
CREATE INDEX IF NOT EXISTS idx_email_messages_type ON email_messages(type);
CREATE INDEX IF NOT EXISTS idx_email_recipients_email ON email_recipients(email_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
