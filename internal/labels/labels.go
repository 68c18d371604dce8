// Package labels maps Gmail system labels to triage fields and back.
package labels

import (
	"slices"

	"github.com/hal9000y/mailmirror/internal/mail"
)

const (
	Draft     = "DRAFT"
	Sent      = "SENT"
	Spam      = "SPAM"
	Unread    = "UNREAD"
	Starred   = "STARRED"
	Important = "IMPORTANT"
	Inbox     = "INBOX"
	Trash     = "TRASH"
)

// Type derives the triage type; the first matching rule wins.
func Type(labelIDs []string) mail.Type {
	switch {
	case slices.Contains(labelIDs, Draft):
		return mail.TypeDraft
	case slices.Contains(labelIDs, Sent):
		return mail.TypeSent
	case slices.Contains(labelIDs, Spam):
		return mail.TypeJunk
	case slices.Contains(labelIDs, Unread):
		return mail.TypeResponseNeeded
	default:
		return mail.TypeReadOnly
	}
}

// Priority derives 3 for starred, 2 for important and 1 otherwise.
func Priority(labelIDs []string) int {
	switch {
	case slices.Contains(labelIDs, Starred):
		return 3
	case slices.Contains(labelIDs, Important):
		return 2
	default:
		return 1
	}
}

// IsRead reports the read state: a message is read unless it carries UNREAD.
func IsRead(labelIDs []string) bool {
	return !slices.Contains(labelIDs, Unread)
}

// IsTrashed reports whether the message is in the trash and must be treated as absent.
func IsTrashed(labelIDs []string) bool {
	return slices.Contains(labelIDs, Trash)
}

// Delta is a label modification request.
type Delta struct {
	Add    []string
	Remove []string
}

// Empty reports whether applying d would change nothing.
func (d Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// ForType returns the label change that moves a remote message into triage type t.
// The second result is false when t has no remote representation and the change must stay local.
func ForType(t mail.Type) (Delta, bool) {
	switch t {
	case mail.TypeJunk:
		return Delta{Add: []string{Spam}, Remove: []string{Inbox}}, true
	case mail.TypeResponseNeeded:
		return Delta{Add: []string{Inbox, Unread}, Remove: []string{Spam}}, true
	case mail.TypeReadOnly:
		return Delta{Add: []string{Inbox}, Remove: []string{Spam, Unread}}, true
	case mail.TypeJunkUncertain:
		// local-only bucket, remote copy stays in the inbox
		return Delta{Add: []string{Inbox}, Remove: []string{Spam}}, true
	default:
		return Delta{}, false
	}
}

// ForReadState returns the label change for marking a message read or unread.
func ForReadState(read bool) Delta {
	if read {
		return Delta{Remove: []string{Unread}}
	}
	return Delta{Add: []string{Unread}}
}
