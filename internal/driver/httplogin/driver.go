// Package httplogin drives a classic HTML form login over plain HTTP.
package httplogin

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/loginramp/internal/loadtest"
)

const (
	// UserAgent prefixes the per-session User-Agent header.
	UserAgent = "loginramp/1.0"
	// RequestIDHeader carries a fresh id on every request.
	RequestIDHeader = "X-Request-Id"

	maxBodyBytes = 2 << 20
)

var errFormNotFound = errors.New("login form not found")

// Credential is one account sessions may log in with.
type Credential struct {
	Username string
	Password string
}

// Config describes the login page and how to judge the result.
type Config struct {
	// LoginURL is the absolute URL of the login page.
	LoginURL      string
	UsernameField string
	PasswordField string
	// FormSelector picks the login form; by default the first form holding
	// a password input is used.
	FormSelector string
	// ErrorSelector matches the element a failed login renders.
	ErrorSelector string
	// SuccessSelector, when set, must match on the landing page.
	SuccessSelector    string
	Accounts           []Credential
	InsecureSkipVerify bool
}

// Validate checks configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.LoginURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("httplogin: invalid login url %q", c.LoginURL)
	}
	if c.UsernameField == "" || c.PasswordField == "" {
		return errors.New("httplogin: username and password field names are required")
	}
	if len(c.Accounts) == 0 {
		return errors.New("httplogin: at least one account is required")
	}
	return nil
}

// Factory hands out one Driver per level. All drivers share a base
// transport configuration; every session clones it.
type Factory struct {
	config    Config
	loginURL  *url.URL
	transport *http.Transport
	logger    *zap.Logger
}

// NewFactory validates cfg and prepares the shared transport.
func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loginURL, _ := url.Parse(cfg.LoginURL)

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for staging targets
	}

	return &Factory{
		config:    cfg,
		loginURL:  loginURL,
		transport: tr,
		logger:    logger,
	}, nil
}

// NewDriver implements loadtest.DriverFactory.
func (f *Factory) NewDriver(_ context.Context, concurrency int) (loadtest.Driver, error) {
	return &Driver{
		config:      f.config,
		loginURL:    f.loginURL,
		transport:   f.transport,
		concurrency: concurrency,
		logger:      f.logger.With(zap.Int("concurrency", concurrency)),
	}, nil
}

// Driver performs login sessions for one level. It holds no connections
// itself: every session clones transport and releases its clone when done.
type Driver struct {
	config      Config
	loginURL    *url.URL
	transport   *http.Transport
	concurrency int
	logger      *zap.Logger
}


// session is the isolated browser-like state of one simulated user.
type session struct {
	id        int
	client    *http.Client
	transport *http.Transport
	userAgent string
}

func (d *Driver) newSession(id int) (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	tr := d.transport.Clone()
	return &session{
		id:        id,
		client:    &http.Client{Jar: jar, Transport: tr},
		transport: tr,
		userAgent: fmt.Sprintf("%s (level %d; session %d)", UserAgent, d.concurrency, id),
	}, nil
}

func (s *session) close() {
	s.transport.CloseIdleConnections()
}

func (s *session) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return s.client.Do(req)
}

// account returns the credential session id uses.
func (d *Driver) account(id int) Credential {
	return d.config.Accounts[(id-1)%len(d.config.Accounts)]
}

// PerformSession loads the login page, submits the form and judges where
// the browser lands.
func (d *Driver) PerformSession(ctx context.Context, sessionID int) (loadtest.Outcome, error) {
	s, err := d.newSession(sessionID)
	if err != nil {
		return loadtest.Outcome{}, err
	}
	defer s.close()

	start := time.Now()
	outcome, err := d.login(ctx, s, d.account(sessionID))
	d.logger.Debug("login session finished",
		zap.Int("session", sessionID),
		zap.Bool("success", outcome.Success),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return outcome, err
}

func (d *Driver) login(ctx context.Context, s *session, cred Credential) (loadtest.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.loginURL.String(), nil)
	if err != nil {
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorNavigationFailure, err)
	}
	resp, err := s.do(req)
	if err != nil {
		return loadtest.Outcome{}, transportError(ctx, err)
	}
	loginPage, err := readPage(resp)
	if err != nil {
		return loadtest.Outcome{}, transportError(ctx, err)
	}
	if loginPage.status < 200 || loginPage.status > 299 {
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorNavigationFailure,
			fmt.Errorf("login page returned status %d", loginPage.status))
	}

	form, err := d.findForm(loginPage.doc)
	if err != nil {
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorNavigationFailure, err)
	}

	submit, err := d.buildSubmit(ctx, loginPage.url, form, cred)
	if err != nil {
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorNavigationFailure, err)
	}
	resp, err = s.do(submit)
	if err != nil {
		return loadtest.Outcome{}, transportError(ctx, err)
	}
	landing, err := readPage(resp)
	if err != nil {
		return loadtest.Outcome{}, transportError(ctx, err)
	}

	return d.judge(landing)
}

type page struct {
	status int
	url    *url.URL
	doc    *goquery.Document
}

func readPage(resp *http.Response) (*page, error) {
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &page{status: resp.StatusCode, url: resp.Request.URL, doc: doc}, nil
}

func (d *Driver) findForm(doc *goquery.Document) (*goquery.Selection, error) {
	var form *goquery.Selection
	if d.config.FormSelector != "" {
		form = doc.Find(d.config.FormSelector).First()
	} else {
		form = doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Find(`input[type="password"]`).Length() > 0
		}).First()
	}
	if form.Length() == 0 {
		return nil, errFormNotFound
	}
	return form, nil
}

// buildSubmit carries hidden inputs (CSRF tokens and the like) and fills in
// the credentials.
func (d *Driver) buildSubmit(ctx context.Context, pageURL *url.URL, form *goquery.Selection, cred Credential) (*http.Request, error) {
	values := url.Values{}
	form.Find("input").Each(func(_ int, in *goquery.Selection) {
		name, ok := in.Attr("name")
		if !ok || name == "" {
			return
		}
		if strings.EqualFold(in.AttrOr("type", "text"), "hidden") {
			values.Set(name, in.AttrOr("value", ""))
		}
	})
	values.Set(d.config.UsernameField, cred.Username)
	values.Set(d.config.PasswordField, cred.Password)

	action, err := pageURL.Parse(form.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("form action: %w", err)
	}

	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodPost)))
	if method == http.MethodGet {
		action.RawQuery = values.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, action.String(), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func (d *Driver) judge(landing *page) (loadtest.Outcome, error) {
	switch {
	case landing.status == http.StatusUnauthorized || landing.status == http.StatusForbidden:
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorRejected,
			fmt.Errorf("login rejected with status %d", landing.status))
	case landing.status == http.StatusTooManyRequests:
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorRejected,
			errors.New("too many requests"))
	case landing.status >= 500:
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorUnknown,
			fmt.Errorf("server error: status %d", landing.status))
	case landing.status < 200 || landing.status > 299:
		return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorNavigationFailure,
			fmt.Errorf("login submit returned status %d", landing.status))
	}

	if d.config.ErrorSelector != "" {
		if sel := landing.doc.Find(d.config.ErrorSelector); sel.Length() > 0 {
			msg := strings.Join(strings.Fields(sel.First().Text()), " ")
			if msg == "" {
				msg = "error element present"
			}
			return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorRejected, errors.New(msg))
		}
	}

	if landing.url.Path == d.loginURL.Path {
		if _, err := d.findForm(landing.doc); err == nil {
			return loadtest.Outcome{}, loadtest.NewSessionError(loadtest.ErrorRejected,
				errors.New("still on login page after submit"))
		}
	}

	if d.config.SuccessSelector != "" && landing.doc.Find(d.config.SuccessSelector).Length() == 0 {
		return loadtest.Outcome{Hint: fmt.Sprintf("success marker %q not found", d.config.SuccessSelector)}, nil
	}

	return loadtest.Outcome{Success: true}, nil
}

// transportError keeps deadline errors recognisable as timeouts and marks
// everything else as a navigation failure.
func transportError(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
		return err
	}
	return loadtest.NewSessionError(loadtest.ErrorNavigationFailure, err)
}
