package mail

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	DefaultAttachmentName = "attachment.bin"
	DefaultContentType    = "application/octet-stream"

	emptyContentDigest = "empty"
)

// Attachment is a file carried by a message. It is never persisted by the mirror.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content,omitempty"`
}

// AttachmentMeta describes an attachment without its bytes.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// NormalizeContentType lower-cases ct and falls back to application/octet-stream when it is not a media type.
func NormalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" || !strings.Contains(ct, "/") {
		return DefaultContentType
	}
	return ct
}

type attachmentKey struct {
	filename    string
	contentType string
	size        int
	digest      string
}

func keyOf(a Attachment) attachmentKey {
	digest := emptyContentDigest
	if len(a.Content) > 0 {
		sum := sha1.Sum(a.Content)
		digest = hex.EncodeToString(sum[:])
	}

	return attachmentKey{
		filename:    a.Filename,
		contentType: a.ContentType,
		size:        len(a.Content),
		digest:      digest,
	}
}

// MergeAttachments concatenates existing and incoming, normalizes every entry and drops byte-identical
// duplicates. Entries from existing win over incoming entries with the same identity.
func MergeAttachments(existing, incoming []Attachment) []Attachment {
	merged := make([]Attachment, 0, len(existing)+len(incoming))
	seen := make(map[attachmentKey]struct{}, len(existing)+len(incoming))

	for _, group := range [][]Attachment{existing, incoming} {
		for _, a := range group {
			a.Filename = strings.TrimSpace(a.Filename)
			if a.Filename == "" {
				a.Filename = DefaultAttachmentName
			}
			a.ContentType = NormalizeContentType(a.ContentType)
			if a.Content == nil {
				a.Content = []byte{}
			}

			key := keyOf(a)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, a)
		}
	}

	return merged
}
