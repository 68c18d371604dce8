package extract

import (
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"
)

// Headers is the envelope of a message as read from its top-level part.
type Headers struct {
	Subject   string
	From      string
	To        []string
	CC        []string
	Date      time.Time
	MessageID string
}

// ParseHeaders reads the envelope headers of payload. Unparsable address lists fall back to their
// raw comma-separated entries and an unparsable date is left zero.
func ParseHeaders(payload *gmail.MessagePart) Headers {
	if payload == nil {
		return Headers{}
	}

	var h gomail.Header
	for _, ph := range payload.Headers {
		if ph == nil {
			continue
		}
		h.Add(ph.Name, ph.Value)
	}

	result := Headers{}

	if subject, err := h.Subject(); err == nil {
		result.Subject = strings.TrimSpace(subject)
	} else {
		result.Subject = strings.TrimSpace(h.Get("Subject"))
	}

	if from := addressList(h, "From"); len(from) > 0 {
		result.From = from[0]
	}
	result.To = bareAddresses(h, "To")
	result.CC = bareAddresses(h, "Cc")

	if date, err := h.Date(); err == nil {
		result.Date = date
	}

	if id, err := h.MessageID(); err == nil {
		result.MessageID = id
	}

	return result
}

// addressList renders each address as "Name <addr>" or a bare address.
func addressList(h gomail.Header, key string) []string {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return nil
	}

	addrs, err := gomail.ParseAddressList(raw)
	if err != nil || len(addrs) == 0 {
		return []string{raw}
	}

	result := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			result = append(result, a.Name+" <"+a.Address+">")
			continue
		}
		result = append(result, a.Address)
	}
	return result
}

func bareAddresses(h gomail.Header, key string) []string {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return nil
	}

	addrs, err := gomail.ParseAddressList(raw)
	if err != nil {
		return strings.Split(raw, ",")
	}

	result := make([]string, 0, len(addrs))
	for _, a := range addrs {
		result = append(result, a.Address)
	}
	return result
}

// header returns the first header of p named name, compared case-insensitively.
func header(p *gmail.MessagePart, name string) string {
	for _, h := range p.Headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}
