// internal/apiclient/client.go
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Target API routes.
const (
	pathUser          = "/Account/v1/User"
	pathGenerateToken = "/Account/v1/GenerateToken"
	pathLogin         = "/Account/v1/Login"
	pathBooks         = "/BookStore/v1/Books"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	UserAgent string
	// Transport overrides the base round tripper. Used by tests.
	Transport http.RoundTripper
}

// Client talks to the target HTTP API. Every Client owns its own cookie jar, so two
// clients never share authentication state.
type Client struct {
	base       *url.URL
	http       *http.Client
	logger     *zap.Logger
	lastStatus atomic.Int32
}

// New builds a Client with a fresh cookie jar.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	rt := opts.Transport
	if rt == nil {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}
	rt = &decodingTransport{next: rt}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		rt = &pacedTransport{next: rt, limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), burst)}
	}
	rt = &headerTransport{next: rt, userAgent: opts.UserAgent}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:   base,
		http:   &http.Client{Transport: rt, Jar: jar, Timeout: timeout},
		logger: logger.Named("apiclient"),
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base.String() }

// LastStatus is the status code of the most recent response, 0 before any response.
func (c *Client) LastStatus() int { return int(c.lastStatus.Load()) }

// Close drops idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// -- Account --

type credentialsBody struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type messageBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RegisterUser calls POST /Account/v1/User. A created account, a duplicate (406) and a
// rejected password (400) are all normal results classified by Kind. Any other status
// is a *schemas.UpstreamAPIError.
func (c *Client) RegisterUser(ctx context.Context, creds schemas.Credentials) (schemas.RegistrationResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathUser, "", credentialsBody{creds.UserName, creds.Password})
	if err != nil {
		return schemas.RegistrationResult{}, err
	}

	res := schemas.RegistrationResult{Status: status}
	switch status {
	case http.StatusCreated:
		var created map[string]any
		if err := json.Unmarshal(body, &created); err != nil {
			return res, c.upstream(http.MethodPost, pathUser, status, body)
		}
		res.Kind = schemas.RegistrationCreated
		res.UserID = firstNonEmpty(stringField(created, "userID"), stringField(created, "userId"), stringField(created, "id"))
		res.UserName = firstNonEmpty(stringField(created, "username"), creds.UserName)
		res.Message = "User Register Successfully."
		return res, nil

	case http.StatusNotAcceptable, http.StatusBadRequest:
		var msg messageBody
		_ = json.Unmarshal(body, &msg)
		res.Message, res.Code = msg.Message, msg.Code
		res.UserName = creds.UserName
		if status == http.StatusBadRequest {
			res.Kind = schemas.RegistrationRejected
			return res, nil
		}
		if strings.Contains(strings.ToLower(msg.Message), "exists") {
			res.Kind = schemas.RegistrationAlreadyExists
			return res, nil
		}
	}
	return res, c.upstream(http.MethodPost, pathUser, status, body)
}

// GenerateToken calls POST /Account/v1/GenerateToken. The API answers 200 even for bad
// credentials, with status "Failed" and a null token; that is reported as an upstream error.
func (c *Client) GenerateToken(ctx context.Context, creds schemas.Credentials) (schemas.TokenResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathGenerateToken, "", credentialsBody{creds.UserName, creds.Password})
	if err != nil {
		return schemas.TokenResult{}, err
	}
	if status != http.StatusOK {
		return schemas.TokenResult{}, c.upstream(http.MethodPost, pathGenerateToken, status, body)
	}
	var tok schemas.TokenResult
	if err := json.Unmarshal(body, &tok); err != nil {
		return schemas.TokenResult{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.Token == "" {
		return tok, c.upstream(http.MethodPost, pathGenerateToken, status, body)
	}
	return tok, nil
}

// Login calls POST /Account/v1/Login, which returns the user id alongside a token.
func (c *Client) Login(ctx context.Context, creds schemas.Credentials) (schemas.LoginResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathLogin, "", credentialsBody{creds.UserName, creds.Password})
	if err != nil {
		return schemas.LoginResult{}, err
	}
	if status != http.StatusOK {
		return schemas.LoginResult{}, c.upstream(http.MethodPost, pathLogin, status, body)
	}
	var res schemas.LoginResult
	if err := json.Unmarshal(body, &res); err != nil {
		return schemas.LoginResult{}, fmt.Errorf("failed to decode login response: %w", err)
	}
	return res, nil
}

// GetUser calls GET /Account/v1/User/{id} with bearer authentication.
func (c *Client) GetUser(ctx context.Context, userID, token string) (schemas.Account, error) {
	route := path.Join(pathUser, url.PathEscape(userID))
	status, body, err := c.do(ctx, http.MethodGet, route, token, nil)
	if err != nil {
		return schemas.Account{}, err
	}
	if status != http.StatusOK {
		return schemas.Account{}, c.upstream(http.MethodGet, route, status, body)
	}
	var acct schemas.Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return schemas.Account{}, fmt.Errorf("failed to decode account: %w", err)
	}
	return acct, nil
}

// -- BookStore --

// ListBooks calls GET /BookStore/v1/Books.
func (c *Client) ListBooks(ctx context.Context) ([]schemas.Book, error) {
	status, body, err := c.do(ctx, http.MethodGet, pathBooks, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.upstream(http.MethodGet, pathBooks, status, body)
	}
	var list schemas.BookList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode book list: %w", err)
	}
	return list.Books, nil
}

// -- Plumbing --

func (c *Client) do(ctx context.Context, method, route, bearer string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	target := c.base.JoinPath(route)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.lastStatus.Store(int32(resp.StatusCode))
	c.logger.Debug("API call completed.",
		zap.String("method", method),
		zap.String("route", route),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) upstream(method, route string, status int, body []byte) error {
	return &schemas.UpstreamAPIError{Method: method, Path: route, Status: status, Body: string(body)}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
