package mail

import "strings"

// Outgoing is user-composed mail: a new message, a reply or a draft.
type Outgoing struct {
	To          []string     `json:"to"`
	CC          []string     `json:"cc,omitempty"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Attachments []Attachment `json:"-"`
}

// CleanTitle returns the trimmed title or DefaultTitle.
func (o Outgoing) CleanTitle() string {
	if t := strings.TrimSpace(o.Title); t != "" {
		return t
	}
	return DefaultTitle
}
