package gservice_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/auth"
	"github.com/hal9000y/mailmirror/internal/gservice"
	"github.com/hal9000y/mailmirror/internal/mail"
)

type tokenMock struct {
	OAuthTokenFunc func() (*oauth2.Token, error)
}

func (m *tokenMock) OAuthToken() (*oauth2.Token, error) {
	return m.OAuthTokenFunc()
}

func validToken() *tokenMock {
	return &tokenMock{OAuthTokenFunc: func() (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
	}}
}

func newTestGmail(t *testing.T, handler http.Handler) *gservice.GMail {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	return gservice.NewGmail(&oauth2.Config{ClientID: "client"}, validToken(), gservice.Options{
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		Endpoint:          srv.URL + "/",
	}, logger)
}

func TestAvailable(t *testing.T) {
	logger, _ := test.NewNullLogger()

	noToken := &tokenMock{OAuthTokenFunc: func() (*oauth2.Token, error) { return nil, auth.ErrTokenNotSet }}

	cases := []struct {
		name     string
		svc      *gservice.GMail
		expected bool
	}{
		{name: "nil config", svc: gservice.NewGmail(nil, validToken(), gservice.Options{}, logger)},
		{name: "empty client id", svc: gservice.NewGmail(&oauth2.Config{}, validToken(), gservice.Options{}, logger)},
		{name: "no token", svc: gservice.NewGmail(&oauth2.Config{ClientID: "c"}, noToken, gservice.Options{}, logger)},
		{name: "ready", svc: gservice.NewGmail(&oauth2.Config{ClientID: "c"}, validToken(), gservice.Options{}, logger), expected: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.svc.Available())
			if !tc.expected {
				_, err := tc.svc.ListMessages(context.Background(), "", "", 10, true)
				require.ErrorIs(t, err, mail.ErrProviderUnavailable)
			}
		})
	}
}

func TestListMessages(t *testing.T) {
	svc := newTestGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("includeSpamTrash"))
		assert.Equal(t, "10", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "p1", r.URL.Query().Get("pageToken"))
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"}],"nextPageToken":"p2"}`))
	}))

	resp, err := svc.ListMessages(context.Background(), "", "p1", 10, true)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m1", resp.Messages[0].Id)
	assert.Equal(t, "p2", resp.NextPageToken)
}

func TestCallsPresentTokenWithoutRefreshing(t *testing.T) {
	var refreshes atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"other","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer kept", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer apiSrv.Close()

	tok := &tokenMock{OAuthTokenFunc: func() (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "kept", RefreshToken: "refresh", TokenType: "Bearer", Expiry: time.Now().Add(-time.Minute)}, nil
	}}

	logger, _ := test.NewNullLogger()
	svc := gservice.NewGmail(&oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: tokenSrv.URL},
	}, tok, gservice.Options{RequestTimeout: 5 * time.Second, RequestsPerSecond: 1000, Burst: 1000, Endpoint: apiSrv.URL + "/"}, logger)

	for i := 0; i < 2; i++ {
		_, err := svc.ListMessages(context.Background(), "", "", 10, true)
		require.NoError(t, err)
	}
	assert.Zero(t, refreshes.Load())
}

func TestSend(t *testing.T) {
	svc := newTestGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)

		var msg gmail.Message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		raw, err := base64.URLEncoding.DecodeString(msg.Raw)
		assert.NoError(t, err)
		assert.Equal(t, "Subject: hi\r\n\r\nbody", string(raw))
		assert.Equal(t, "t1", msg.ThreadId)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sent-1","threadId":"t1","labelIds":["SENT"]}`))
	}))

	sent, err := svc.Send(context.Background(), []byte("Subject: hi\r\n\r\nbody"), "t1")
	require.NoError(t, err)
	assert.Equal(t, "sent-1", sent.Id)
}

func TestModifyLabels(t *testing.T) {
	svc := newTestGmail(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages/m1/modify", r.URL.Path)

		var req gmail.ModifyMessageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"SPAM"}, req.AddLabelIds)
		assert.Equal(t, []string{"INBOX"}, req.RemoveLabelIds)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))

	require.NoError(t, svc.ModifyLabels(context.Background(), "m1", []string{"SPAM"}, []string{"INBOX"}))
}

func TestServerFailuresOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	svc := newTestGmail(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend down"}}`))
	}))

	for i := 0; i < 6; i++ {
		_, err := svc.GetMessage(context.Background(), "m1")
		require.ErrorIs(t, err, mail.ErrTransient)
	}
	served := hits.Load()

	_, err := svc.GetMessage(context.Background(), "m1")
	require.ErrorIs(t, err, mail.ErrTransient)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, served, hits.Load(), "open breaker must not reach the server")
}

func TestClientErrorsKeepBreakerClosed(t *testing.T) {
	var hits atomic.Int32
	svc := newTestGmail(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	}))

	for i := 0; i < 12; i++ {
		_, err := svc.GetMessage(context.Background(), "gone")
		require.ErrorIs(t, err, mail.ErrTransient)
		require.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, int32(12), hits.Load())
}
