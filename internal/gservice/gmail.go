// Package gservice wraps the Gmail API for the mirror.
package gservice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hal9000y/mailmirror/internal/auth"
	"github.com/hal9000y/mailmirror/internal/mail"
)

const gmailUserID = "me"

type tokenSource interface {
	OAuthToken() (*oauth2.Token, error)
}

// Options tune provider calls.
type Options struct {
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	// Endpoint overrides the API base URL, tests only.
	Endpoint string
}

func NewGmail(cfg *oauth2.Config, tok tokenSource, opts Options, log logrus.FieldLogger) *GMail {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}

	return &GMail{
		cfg:      cfg,
		tok:      tok,
		timeout:  opts.RequestTimeout,
		endpoint: opts.Endpoint,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gmail-api",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.ConsecutiveFailures > 5 ||
					(counts.Requests >= 10 && failureRatio >= 0.6)
			},
			IsSuccessful: isBreakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			},
		}),
		log: log,
	}
}

// GMail is the remote provider. Every call is rate limited, bounded by a timeout and guarded by a
// circuit breaker. Failures are wrapped in mail.ErrTransient, a missing configuration or token in
// mail.ErrProviderUnavailable.
type GMail struct {
	cfg      *oauth2.Config
	tok      tokenSource
	timeout  time.Duration
	endpoint string
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker
	log      logrus.FieldLogger
}

// Available reports whether the provider is configured and authorized.
func (m *GMail) Available() bool {
	if m == nil || m.cfg == nil || m.cfg.ClientID == "" || m.tok == nil {
		return false
	}
	_, err := m.tok.OAuthToken()
	return err == nil
}

func (m *GMail) ListMessages(ctx context.Context, q, pageToken string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error) {
	var result *gmail.ListMessagesResponse
	err := m.call(ctx, "messages.List", func(ctx context.Context, svc *gmail.Service) error {
		call := svc.Users.Messages.List(gmailUserID).
			PageToken(pageToken).
			MaxResults(maxResults).
			IncludeSpamTrash(includeSpamTrash).
			Context(ctx)
		if q != "" {
			call = call.Q(q)
		}

		var err error
		result, err = call.Do()
		return err
	})

	return result, err
}

func (m *GMail) GetMessage(ctx context.Context, msgID string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := m.call(ctx, "messages.Get", func(ctx context.Context, svc *gmail.Service) error {
		var err error
		msg, err = svc.Users.Messages.Get(gmailUserID, msgID).Format("full").Context(ctx).Do()
		return err
	})

	return msg, err
}

func (m *GMail) GetAttachment(ctx context.Context, msgID, attachmentID string) (*gmail.MessagePartBody, error) {
	var attachment *gmail.MessagePartBody
	err := m.call(ctx, "attachments.Get", func(ctx context.Context, svc *gmail.Service) error {
		var err error
		attachment, err = svc.Users.Messages.Attachments.Get(gmailUserID, msgID, attachmentID).Context(ctx).Do()
		return err
	})

	return attachment, err
}

func (m *GMail) ModifyLabels(ctx context.Context, msgID string, add, remove []string) error {
	return m.call(ctx, "messages.Modify", func(ctx context.Context, svc *gmail.Service) error {
		_, err := svc.Users.Messages.Modify(gmailUserID, msgID, &gmail.ModifyMessageRequest{
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
		return err
	})
}

func (m *GMail) Trash(ctx context.Context, msgID string) error {
	return m.call(ctx, "messages.Trash", func(ctx context.Context, svc *gmail.Service) error {
		_, err := svc.Users.Messages.Trash(gmailUserID, msgID).Context(ctx).Do()
		return err
	})
}

// Send delivers an RFC 5322 message, optionally inside an existing thread.
func (m *GMail) Send(ctx context.Context, raw []byte, threadID string) (*gmail.Message, error) {
	var sent *gmail.Message
	err := m.call(ctx, "messages.Send", func(ctx context.Context, svc *gmail.Service) error {
		var err error
		sent, err = svc.Users.Messages.Send(gmailUserID, rawMessage(raw, threadID)).Context(ctx).Do()
		return err
	})

	return sent, err
}

func (m *GMail) ListDrafts(ctx context.Context, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error) {
	var result *gmail.ListDraftsResponse
	err := m.call(ctx, "drafts.List", func(ctx context.Context, svc *gmail.Service) error {
		var err error
		result, err = svc.Users.Drafts.List(gmailUserID).
			PageToken(pageToken).
			MaxResults(maxResults).
			Context(ctx).
			Do()
		return err
	})

	return result, err
}

func (m *GMail) GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error) {
	var draft *gmail.Draft
	err := m.call(ctx, "drafts.Get", func(ctx context.Context, svc *gmail.Service) error {
		var err error
		draft, err = svc.Users.Drafts.Get(gmailUserID, draftID).Format("full").Context(ctx).Do()
		return err
	})

	return draft, err
}

func (m *GMail) CreateDraft(ctx context.Context, raw []byte, threadID string) (*gmail.Draft, error) {
	var draft *gmail.Draft
	err := m.call(ctx, "drafts.Create", func(ctx context.Context, svc *gmail.Service) error {
		var err error
		draft, err = svc.Users.Drafts.Create(gmailUserID, &gmail.Draft{
			Message: rawMessage(raw, threadID),
		}).Context(ctx).Do()
		return err
	})

	return draft, err
}

func (m *GMail) UpdateDraft(ctx context.Context, draftID string, raw []byte, threadID string) (*gmail.Draft, error) {
	var draft *gmail.Draft
	err := m.call(ctx, "drafts.Update", func(ctx context.Context, svc *gmail.Service) error {
		var err error
		draft, err = svc.Users.Drafts.Update(gmailUserID, draftID, &gmail.Draft{
			Id:      draftID,
			Message: rawMessage(raw, threadID),
		}).Context(ctx).Do()
		return err
	})

	return draft, err
}

func (m *GMail) DeleteDraft(ctx context.Context, draftID string) error {
	return m.call(ctx, "drafts.Delete", func(ctx context.Context, svc *gmail.Service) error {
		return svc.Users.Drafts.Delete(gmailUserID, draftID).Context(ctx).Do()
	})
}

func rawMessage(raw []byte, threadID string) *gmail.Message {
	return &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}
}

func (m *GMail) call(ctx context.Context, op string, fn func(ctx context.Context, svc *gmail.Service) error) error {
	if !m.Available() {
		return fmt.Errorf("%s failed: %w", op, mail.ErrProviderUnavailable)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s failed: %w: limiter.Wait: %w", op, mail.ErrTransient, err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	svc, err := m.newSvc(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	_, err = m.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx, svc)
	})
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"breaker":   m.cb.State().String(),
		}).Debug("Provider call failed")

		return fmt.Errorf("%s failed: %w: %w", op, mail.ErrTransient, err)
	}

	return nil
}

func (m *GMail) newSvc(ctx context.Context) (*gmail.Service, error) {
	t, err := m.tok.OAuthToken()
	if errors.Is(err, auth.ErrTokenNotSet) {
		return nil, fmt.Errorf("tok.OAuthToken failed: %w: %w", mail.ErrProviderUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("tok.OAuthToken failed: %w", err)
	}

	// tok refreshes and keeps the token; the client only presents it.
	clt := oauth2.NewClient(ctx, oauth2.StaticTokenSource(t))

	opts := []option.ClientOption{option.WithHTTPClient(clt)}
	if m.endpoint != "" {
		opts = append(opts, option.WithEndpoint(m.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}

// isBreakerSuccess keeps client errors from tripping the breaker; only throttling and server
// failures count.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code < http.StatusInternalServerError && apiErr.Code != http.StatusTooManyRequests
	}

	return false
}
