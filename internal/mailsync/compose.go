package mailsync

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/hal9000y/mailmirror/internal/mail"
)

// compose renders out as an RFC 5322 multipart/mixed message: one text part followed by the
// attachments.
func compose(out mail.Outgoing, from string, date time.Time) ([]byte, error) {
	var h gomail.Header
	h.SetDate(date)
	h.SetSubject(out.CleanTitle())

	if from != "" {
		addrs, err := parseAddresses([]string{from})
		if err != nil {
			return nil, err
		}
		h.SetAddressList("From", addrs)
	}

	to, err := parseAddresses(out.To)
	if err != nil {
		return nil, err
	}
	if len(to) > 0 {
		h.SetAddressList("To", to)
	}

	cc, err := parseAddresses(out.CC)
	if err != nil {
		return nil, err
	}
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}

	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("header.GenerateMessageID failed: %w", err)
	}

	var buf bytes.Buffer
	w, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("mail.CreateWriter failed: %w", err)
	}

	var ih gomail.InlineHeader
	ih.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := w.CreateSingleInline(ih)
	if err != nil {
		return nil, fmt.Errorf("writer.CreateSingleInline failed: %w", err)
	}
	if _, err := io.WriteString(tw, out.Body); err != nil {
		return nil, fmt.Errorf("writing body failed: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing body failed: %w", err)
	}

	for _, a := range out.Attachments {
		name := strings.TrimSpace(a.Filename)
		if name == "" {
			name = mail.DefaultAttachmentName
		}

		var ah gomail.AttachmentHeader
		ah.SetContentType(mail.NormalizeContentType(a.ContentType), nil)
		ah.SetFilename(name)

		aw, err := w.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("writer.CreateAttachment failed: %w", err)
		}
		if _, err := aw.Write(a.Content); err != nil {
			return nil, fmt.Errorf("writing attachment %q failed: %w", name, err)
		}
		if err := aw.Close(); err != nil {
			return nil, fmt.Errorf("closing attachment %q failed: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("writer.Close failed: %w", err)
	}

	return buf.Bytes(), nil
}

func parseAddresses(raw []string) ([]*gomail.Address, error) {
	var result []*gomail.Address
	for _, entry := range raw {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		addrs, err := gomail.ParseAddressList(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid address %q: %w", mail.ErrValidation, entry, err)
		}
		result = append(result, addrs...)
	}
	return result, nil
}
