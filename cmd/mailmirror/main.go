// Mailmirror keeps a local triage mirror of a Gmail mailbox and exposes it through Model Context Protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailmirror/internal/auth"
	"github.com/hal9000y/mailmirror/internal/classify"
	"github.com/hal9000y/mailmirror/internal/config"
	"github.com/hal9000y/mailmirror/internal/gservice"
	"github.com/hal9000y/mailmirror/internal/logging"
	"github.com/hal9000y/mailmirror/internal/mailsync"
	"github.com/hal9000y/mailmirror/internal/store"
	"github.com/hal9000y/mailmirror/internal/tool"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	envFileParam := flag.String("env-file", "", "Path to env file")
	enableStdio := flag.Bool("stdio", false, "Enable stdio transport for MCP (disables stdout logging)")

	flag.Parse()

	cfg, err := config.Load(*configFile, *envFileParam)
	if err != nil {
		panic(fmt.Errorf("config.Load failed: %w", err))
	}

	log, closeLog, err := logging.New(cfg.Log, *enableStdio)
	if err != nil {
		panic(fmt.Errorf("logging.New failed: %w", err))
	}
	defer closeLog()

	ln := mustListen(cfg.HTTPAddr)
	oauthCfg := newOauthCfg(cfg, ln.Addr().String())

	tok, err := auth.NewToken(oauthCfg, cfg.OAuth.TokenFile, log)
	if err != nil {
		log.WithError(err).Fatal("auth.NewToken failed")
	}

	defer func() {
		log.Info("Persisting token if exists")
		if err := tok.Persist(); err != nil {
			log.WithError(err).Error("tok.Persist failed")
		}
	}()

	if err := config.EnsureDir(cfg.DBPath); err != nil {
		log.WithError(err).Fatal("config.EnsureDir failed")
	}
	st, err := store.Open(cfg.DBPath, store.Options{LocalUser: cfg.LocalUserEmail})
	if err != nil {
		log.WithError(err).Fatal("store.Open failed")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Error("st.Close failed")
		}
	}()

	gmailSvc := gservice.NewGmail(oauthCfg, tok, gservice.Options{
		RequestTimeout:    cfg.Provider.RequestTimeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		Burst:             cfg.Provider.Burst,
	}, log)

	classifier := classify.New(classify.Config{
		BaseURL: cfg.Classifier.BaseURL,
		Model:   cfg.Classifier.Model,
		APIKey:  cfg.Classifier.APIKey,
		Timeout: cfg.Classifier.Timeout,
	}, log)
	if !classifier.Enabled() {
		log.Warn("Classifier API key not set, classification and reply suggestions are disabled")
	}

	svc := mailsync.NewService(gmailSvc, st, classifier, log)
	scheduler := mailsync.New(svc, mailsync.Options{
		MinInterval: cfg.Sync.Interval,
		MaxResults:  cfg.Sync.MaxResults,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		scheduler.Wait()
		log.Info("Background sync stopped")
	}()

	scheduler.Start(mailsync.Job{Force: true, Drafts: cfg.Sync.DraftMaxResults})
	if cfg.Sync.PollEvery > 0 {
		go scheduler.Poll(ctx, cfg.Sync.PollEvery)
	}

	mcpSrv := tool.NewServer(st, svc, scheduler, tool.Options{DraftMaxResults: cfg.Sync.DraftMaxResults})
	mcpHTTP := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return mcpSrv }, nil)

	mux := http.NewServeMux()
	mux.Handle("/oauth", auth.NewHTTPHandler(tok, log))
	mux.Handle("/mcp", mcpHTTP)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)

	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	switch _, err := tok.OAuthToken(); {
	case !cfg.OAuthConfigured():
		log.Warn("Google OAuth client is not configured, running with the local mirror only")
	case errors.Is(err, auth.ErrTokenNotSet):
		openBrowser(oauthCfg.RedirectURL, log)
	}

	stopHTTP, errHTTPCh := serveHTTP(srv, ln, log)
	defer stopHTTP()

	var errStdioCh <-chan error
	if *enableStdio {
		var stopStdio func()
		stopStdio, errStdioCh = serveStdio(mcpSrv, log)
		defer stopStdio()
	}

	select {
	case err := <-errHTTPCh:
		log.WithError(err).Error("Error http server")
	case err := <-errStdioCh:
		log.WithError(err).Error("Error stdio")
	case <-shutdown:
		log.Info("Shutdown signal received")
	}
}

func serveStdio(srv *mcp.Server, log logrus.FieldLogger) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errStdioCh)
		log.Info("Starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			err = fmt.Errorf("srv.Run failed: %w", err)
			errStdioCh <- err
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		log.Info("Stdio transport stopped")
	}, errStdioCh
}

func serveHTTP(srv *http.Server, ln net.Listener, log logrus.FieldLogger) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		log.WithField("addr", ln.Addr().String()).Info("Starting http server")

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("srv.Serve failed: %w", err)
			errHTTPCh <- err
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("srv.Shutdown failed")
		}

		<-errHTTPCh
		log.Info("HTTP server stopped")
	}, errHTTPCh
}

func mustListen(httpAddr string) net.Listener {
	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		panic(fmt.Errorf("net.Listen failed: %w", err))
	}

	return ln
}

func newOauthCfg(cfg *config.Config, lnAddr string) *oauth2.Config {
	oauthURL := fmt.Sprintf("http://%s/oauth", lnAddr)
	if cfg.OAuth.RedirectURL != "" {
		oauthURL = cfg.OAuth.RedirectURL
	}

	return &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  oauthURL,
		Scopes:       []string{gmail.GmailModifyScope, gmail.GmailComposeScope, gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
}

func openBrowser(url string, log logrus.FieldLogger) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		log.WithError(err).WithField("url", url).Warn("Could not open browser automatically, please copy and open link in the browser")
	}
}
