// Package extract turns Gmail message payloads into plain text, HTML and attachments.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/format"
	"github.com/hal9000y/mailmirror/internal/mail"
)

// Fetcher loads attachment-referenced part bytes.
type Fetcher interface {
	GetAttachment(ctx context.Context, msgID, attachmentID string) (*gmail.MessagePartBody, error)
}

// Result is the readable content of a message.
type Result struct {
	Text        string
	HTML        string
	Attachments []mail.AttachmentMeta
}

// Extractor walks payload trees. It holds no per-message state and is safe for concurrent use.
type Extractor struct {
	fetch Fetcher
	log   logrus.FieldLogger
}

// New creates an Extractor. A nil fetch disables lazy loading and referenced parts read as empty.
func New(fetch Fetcher, log logrus.FieldLogger) *Extractor {
	return &Extractor{fetch: fetch, log: log}
}

// Extract collects text and HTML bodies, resolves inline images into the HTML and lists attachments
// without loading their bytes.
func (e *Extractor) Extract(ctx context.Context, msgID string, payload *gmail.MessagePart) Result {
	var (
		texts, htmls []string
		metas        []mail.AttachmentMeta
		index        int
	)
	inline := make(map[string]string)

	walk(payload, func(p *gmail.MessagePart) {
		switch classify(p) {
		case kindText:
			texts = append(texts, decodeText(e.partBytes(ctx, msgID, p)))
		case kindHTML:
			htmls = append(htmls, decodeText(e.partBytes(ctx, msgID, p)))
		case kindInline:
			if b := e.partBytes(ctx, msgID, p); len(b) > 0 {
				inline[format.NormalizeCID(header(p, "Content-ID"))] = dataURI(mediaType(p), b)
			}
		case kindAttachment:
			index++
			metas = append(metas, mail.AttachmentMeta{
				Filename:    filename(p, index),
				ContentType: mail.NormalizeContentType(mediaType(p)),
				Size:        declaredSize(p),
			})
		}
	})

	html := format.RewriteCIDSources(joinParts(htmls), inline)
	text := joinParts(texts)
	if text == "" && html != "" {
		text = format.HTMLToText(html)
	}

	return Result{Text: text, HTML: html, Attachments: metas}
}

// Attachments returns the attachments listed by Extract together with their bytes. Parts whose bytes
// cannot be loaded are returned with empty content.
func (e *Extractor) Attachments(ctx context.Context, msgID string, payload *gmail.MessagePart) []mail.Attachment {
	var (
		result []mail.Attachment
		index  int
	)

	walk(payload, func(p *gmail.MessagePart) {
		if classify(p) != kindAttachment {
			return
		}
		index++
		result = append(result, mail.Attachment{
			Filename:    filename(p, index),
			ContentType: mail.NormalizeContentType(mediaType(p)),
			Content:     e.partBytes(ctx, msgID, p),
		})
	})

	return result
}

type kind int

const (
	kindSkip kind = iota
	kindText
	kindHTML
	kindInline
	kindAttachment
)

func classify(p *gmail.MessagePart) kind {
	mt := mediaType(p)
	if strings.HasPrefix(mt, "multipart/") {
		return kindSkip
	}

	hasData := p.Body != nil && p.Body.Data != ""
	hasRef := p.Body != nil && p.Body.AttachmentId != ""
	named := strings.TrimSpace(p.Filename) != ""

	switch {
	case (mt == "text/plain" || mt == "text/html") && !isAttachedText(p, named, hasData):
		if mt == "text/plain" {
			return kindText
		}
		return kindHTML
	case strings.HasPrefix(mt, "image/") && header(p, "Content-ID") != "":
		return kindInline
	case named || hasRef:
		return kindAttachment
	default:
		return kindSkip
	}
}

func isAttachedText(p *gmail.MessagePart, named, hasData bool) bool {
	if disposition(p) == "attachment" {
		return true
	}
	return named && !hasData
}

// walk visits every part in pre-order with children in declared order.
func walk(root *gmail.MessagePart, visit func(*gmail.MessagePart)) {
	if root == nil {
		return
	}

	stack := []*gmail.MessagePart{root}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p == nil {
			continue
		}

		visit(p)

		for i := len(p.Parts) - 1; i >= 0; i-- {
			stack = append(stack, p.Parts[i])
		}
	}
}

func (e *Extractor) partBytes(ctx context.Context, msgID string, p *gmail.MessagePart) []byte {
	if p.Body == nil {
		return []byte{}
	}

	data := p.Body.Data
	if data == "" && p.Body.AttachmentId != "" {
		if e.fetch == nil {
			return []byte{}
		}

		body, err := e.fetch.GetAttachment(ctx, msgID, p.Body.AttachmentId)
		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"external_id": msgID,
				"part_id":     p.PartId,
			}).Warn("Attachment fetch failed, using empty content")
			return []byte{}
		}
		if body == nil {
			return []byte{}
		}
		data = body.Data
	}

	b, err := decodeData(data)
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"external_id": msgID,
			"part_id":     p.PartId,
		}).Debug("Undecodable part, using empty content")
		return []byte{}
	}

	return b
}

// decodeData accepts URL-safe base64 as Gmail sends it, padded or not, and standard base64 as a fallback.
func decodeData(data string) ([]byte, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(data), "=")
	if trimmed == "" {
		return []byte{}, nil
	}

	b, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err == nil {
		return b, nil
	}

	b, stdErr := base64.RawStdEncoding.DecodeString(trimmed)
	if stdErr == nil {
		return b, nil
	}

	return nil, fmt.Errorf("base64 decode failed: %w", err)
}

func decodeText(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func joinParts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func dataURI(contentType string, b []byte) string {
	return "data:" + mail.NormalizeContentType(contentType) + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func mediaType(p *gmail.MessagePart) string {
	mt := p.MimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func disposition(p *gmail.MessagePart) string {
	raw := header(p, "Content-Disposition")
	if raw == "" {
		return ""
	}
	disp, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return disp
}

func declaredSize(p *gmail.MessagePart) int64 {
	if p.Body == nil {
		return 0
	}
	if p.Body.Size > 0 {
		return p.Body.Size
	}
	b, err := decodeData(p.Body.Data)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

var preferredExtensions = map[string]string{
	"application/pdf":  ".pdf",
	"application/zip":  ".zip",
	"application/json": ".json",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"text/plain":       ".txt",
	"text/html":        ".html",
	"text/csv":         ".csv",
	"text/calendar":    ".ics",
}

func filename(p *gmail.MessagePart, index int) string {
	if name := strings.TrimSpace(p.Filename); name != "" {
		return name
	}
	return fmt.Sprintf("attachment-%d%s", index, extensionFor(mediaType(p)))
}

func extensionFor(contentType string) string {
	if ext, ok := preferredExtensions[contentType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
