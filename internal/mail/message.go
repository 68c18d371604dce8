// Package mail holds the mirror's data model: messages, snapshots, triage types and attachments.
package mail

import (
	"strings"
	"time"
)

// Type is the triage classification of a message.
type Type string

const (
	TypeResponseNeeded Type = "response-needed"
	TypeReadOnly       Type = "read-only"
	TypeJunk           Type = "junk"
	TypeJunkUncertain  Type = "junk-uncertain"
	TypeSent           Type = "sent"
	TypeDraft          Type = "draft"
)

// Types lists every valid triage type.
var Types = []Type{
	TypeResponseNeeded,
	TypeReadOnly,
	TypeJunk,
	TypeJunkUncertain,
	TypeSent,
	TypeDraft,
}

// Valid reports whether t belongs to the closed set of triage types.
func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

// ParseType returns the triage type named by s and false when s is not one.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// CoerceType maps any unrecognized value to TypeReadOnly.
func CoerceType(s string) Type {
	if t, ok := ParseType(s); ok {
		return t
	}
	return TypeReadOnly
}

const (
	MinPriority = 1
	MaxPriority = 3
)

// ClampPriority forces p into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

const (
	DefaultTitle     = "(No subject)"
	DefaultSender    = "unknown@unknown"
	DefaultLocalUser = "you@example.com"
)

// Message is a locally stored mail record.
type Message struct {
	ID              int64     `json:"id"`
	ExternalID      string    `json:"external_id,omitempty"`
	ProviderDraftID string    `json:"provider_draft_id,omitempty"`
	ThreadID        string    `json:"thread_id,omitempty"`
	Title           string    `json:"title"`
	Sender          string    `json:"sender"`
	To              []string  `json:"to,omitempty"`
	CC              []string  `json:"cc,omitempty"`
	Body            string    `json:"body"`
	BodyHTML        string    `json:"body_html,omitempty"`
	Type            Type      `json:"type"`
	Priority        int       `json:"priority"`
	IsRead          bool      `json:"is_read"`
	ReceivedAt      time.Time `json:"received_at"`
	Summary         string    `json:"summary,omitempty"`
	Draft           string    `json:"draft,omitempty"`
}

// Snapshot is a provider-sourced view of one message, ready to be reconciled with the store.
// Zero values mean "not supplied": Priority 0, zero ReceivedAt, empty Summary/Draft/BodyHTML.
type Snapshot struct {
	ExternalID      string
	ProviderDraftID string
	ThreadID        string
	Title           string
	Sender          string
	To              string
	CC              string
	Body            string
	BodyHTML        string
	Type            string
	Priority        int
	IsRead          bool
	ReceivedAt      time.Time
	Summary         string
	Draft           string
}

// HasIdentity reports whether the snapshot can be matched against the store.
func (s Snapshot) HasIdentity() bool {
	return strings.TrimSpace(s.ExternalID) != "" || strings.TrimSpace(s.ProviderDraftID) != ""
}

// SplitAddresses splits a comma or semicolon separated address list, trimming entries and dropping
// case-insensitive duplicates. The casing of the first occurrence is kept.
func SplitAddresses(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	chunks := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	seen := make(map[string]struct{}, len(chunks))
	result := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		addr := strings.TrimSpace(chunk)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, addr)
	}

	return result
}

// Primary drops sent and draft entries, leaving the conversation as received.
func Primary(msgs []Message) []Message {
	result := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Type == TypeSent || m.Type == TypeDraft {
			continue
		}
		result = append(result, m)
	}
	return result
}

// ReplySubject prefixes title with "Re: " unless it already is a reply.
func ReplySubject(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	if strings.HasPrefix(strings.ToLower(title), "re:") {
		return title
	}
	return "Re: " + title
}
