package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hal9000y/mailmirror/internal/mail"
)

const (
	maxSummaryRunes = 280
	noSummary       = "No summary generated."
)

var triageTypes = map[mail.Type]struct{}{
	mail.TypeReadOnly:       {},
	mail.TypeJunkUncertain:  {},
	mail.TypeJunk:           {},
	mail.TypeResponseNeeded: {},
}

const analyzePrompt = "You are an email triage assistant. Return JSON only with keys: summary, type, priority. " +
	"type must be one of: read-only, junk-uncertain, junk, response-needed. " +
	"priority must be an integer 1 to 3. " +
	"Use priority 3 for urgent/time-sensitive messages requiring action, 2 for important but not urgent, 1 for low urgency. " +
	"summary must be one concise sentence under 35 words."

const replyPrompt = "You write concise, natural email replies. Return only the reply body text, no markdown, no subject line."

// Suggestion is a validated triage proposal.
type Suggestion struct {
	Summary  string    `json:"summary"`
	Type     mail.Type `json:"type"`
	Priority int       `json:"priority"`
}

type rawSuggestion struct {
	Summary  any `json:"summary"`
	Type     any `json:"type"`
	Priority any `json:"priority"`
}

// Analyze proposes a summary, triage type and priority for msg. It reports false when the client is
// disabled, the message has no body or the endpoint gives no usable answer.
func (c *Client) Analyze(ctx context.Context, msg mail.Message) (*Suggestion, bool) {
	body := strings.TrimSpace(msg.Body)
	if !c.Enabled() || body == "" {
		return nil, false
	}

	user := fmt.Sprintf("Classify this email.\n\nSubject: %s\nFrom: %s\nTo: %s\nCc: %s\nBody:\n%s\n\nReturn strictly valid JSON.",
		titleOf(msg), msg.Sender, strings.Join(msg.To, ", "), strings.Join(msg.CC, ", "), trimBody(body))

	text, err := c.complete(ctx, analyzePrompt, user, 0, 260)
	if err != nil {
		c.log.WithError(err).WithField("message_id", msg.ID).Warn("Classification request failed")
		return nil, false
	}

	raw, err := parseSuggestion(text)
	if err != nil {
		c.log.WithError(err).WithField("message_id", msg.ID).Warn("Classification answer unusable")
		return nil, false
	}

	s := &Suggestion{
		Type:     suggestedType(raw.Type),
		Priority: suggestedPriority(raw.Priority),
		Summary:  CleanSummary(fmt.Sprint(valueOr(raw.Summary, ""))),
	}
	if s.Summary == "" {
		s.Summary = CleanSummary(msg.Summary)
	}
	if s.Summary == "" {
		s.Summary = noSummary
	}

	return s, true
}

// GenerateReply drafts a reply body for msg, improving current when it is not empty.
func (c *Client) GenerateReply(ctx context.Context, msg mail.Message, to, cc []string, current string) (string, bool) {
	body := strings.TrimSpace(msg.Body)
	if !c.Enabled() || (body == "" && strings.TrimSpace(msg.Title) == "") {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a reply draft for this email thread.\n\nOriginal subject: %s\nSender: %s\nPlanned To: %s\nPlanned Cc: %s\nOriginal message body:\n%s\n\n",
		titleOf(msg), msg.Sender, strings.Join(to, ", "), strings.Join(cc, ", "), trimBody(body))
	if current = strings.TrimSpace(current); current != "" {
		fmt.Fprintf(&b, "If useful, improve this existing draft while preserving intent:\n%s\n\n", current)
	}
	b.WriteString("Keep it professional, clear, and actionable.")

	text, err := c.complete(ctx, replyPrompt, b.String(), 0.35, 420)
	if err != nil {
		c.log.WithError(err).WithField("message_id", msg.ID).Warn("Reply generation failed")
		return "", false
	}
	if text == "" {
		return "", false
	}

	return text, true
}

// CleanSummary collapses whitespace and caps the summary at 280 runes.
func CleanSummary(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > maxSummaryRunes {
		return string(r[:maxSummaryRunes-3]) + "..."
	}
	return s
}

// parseSuggestion extracts the outermost JSON object of text, repairing it when needed.
func parseSuggestion(text string) (rawSuggestion, error) {
	var raw rawSuggestion

	block := jsonBlock(text)
	if block == "" {
		return raw, fmt.Errorf("no JSON object in answer")
	}

	if err := json.Unmarshal([]byte(block), &raw); err == nil {
		return raw, nil
	}

	repaired, err := jsonrepair.JSONRepair(block)
	if err != nil {
		return raw, fmt.Errorf("jsonrepair.JSONRepair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
		return raw, fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	return raw, nil
}

func jsonBlock(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		// truncated answer, let the repair close it
		return strings.TrimSpace(text[start:])
	}
	return strings.TrimSpace(text[start : end+1])
}

func suggestedType(v any) mail.Type {
	t := mail.Type(strings.ToLower(strings.TrimSpace(fmt.Sprint(valueOr(v, "")))))
	if _, ok := triageTypes[t]; ok {
		return t
	}
	return mail.TypeReadOnly
}

func suggestedPriority(v any) int {
	p := mail.MinPriority
	switch n := v.(type) {
	case float64:
		p = int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			p = parsed
		}
	}
	return mail.ClampPriority(p)
}

func valueOr(v any, fallback any) any {
	if v == nil {
		return fallback
	}
	return v
}

func titleOf(msg mail.Message) string {
	if t := strings.TrimSpace(msg.Title); t != "" {
		return t
	}
	return mail.DefaultTitle
}
