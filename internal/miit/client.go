package miit

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"icpquery/internal/config"
	"icpquery/internal/logging"
	"icpquery/internal/services"
)

const (
	sessionCookie = "__jsluid_s"
	component     = "miit"

	pathAuth      = "/auth"
	pathChallenge = "/image/getCheckImagePoint"
	pathVerify    = "/image/checkImage"
	pathQuery     = "/icpAbbreviateInfo/queryByCondition/"
)

// Registry is the subset of the MIIT API used by the solver and query service.
type Registry interface {
	FetchChallenge(ctx context.Context, clientUID string) (*Challenge, error)
	VerifyChallenge(ctx context.Context, req VerifyRequest) (Credential, error)
	Query(ctx context.Context, cred Credential, name string, page int) (*QueryPage, error)
}

// Client talks to the MIIT filing registry. A client holds one cookie session
// and one auth token; both are established lazily and the token is refreshed
// once it is older than the configured TTL.
type Client struct {
	portalURL   string
	apiBaseURL  string
	userAgent   string
	authSecret  string
	pageSize    int
	serviceType int
	tokenTTL    time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time

	tokenMu   sync.Mutex
	token     string
	tokenAt   time.Time
	bootstrap bool
}

var _ Registry = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. A cookie jar is attached
// when the supplied client has none.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithLimiter overrides the outbound request limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithClock overrides the time source used for handshake timestamps and token age.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a registry client from configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	reg := cfg.Registry
	if strings.TrimSpace(reg.APIBaseURL) == "" || strings.TrimSpace(reg.PortalURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new", "registry urls required", nil)
	}

	limit := rate.Inf
	if reg.RequestsPerSecond > 0 {
		limit = rate.Limit(reg.RequestsPerSecond)
	}
	client := &Client{
		portalURL:   reg.PortalURL,
		apiBaseURL:  strings.TrimRight(reg.APIBaseURL, "/"),
		userAgent:   reg.UserAgent,
		authSecret:  reg.AuthSecret,
		pageSize:    reg.PageSize,
		serviceType: reg.ServiceType,
		tokenTTL:    cfg.TokenTTL(),
		httpClient:  &http.Client{Timeout: cfg.RegistryTimeout()},
		limiter:     rate.NewLimiter(limit, max(reg.Burst, 1)),
		logger:      logging.NewComponentLogger(nil, component),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		client.httpClient.Jar = jar
	}
	return client, nil
}

// NewClientUID returns a fresh client identifier in the form the registry's
// web frontend generates: "point-" followed by a random v4 UUID.
func NewClientUID() string {
	return "point-" + uuid.NewString()
}

// Bootstrap establishes the cookie session and fetches an auth token.
func (c *Client) Bootstrap(ctx context.Context) error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.bootstrapLocked(ctx)
}

func (c *Client) bootstrapLocked(ctx context.Context) error {
	if err := c.setupCookie(ctx); err != nil {
		return err
	}
	c.bootstrap = true
	return c.refreshTokenLocked(ctx)
}

func (c *Client) setupCookie(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.portalURL, nil)
	if err != nil {
		return fmt.Errorf("build portal request: %w", err)
	}
	c.decorate(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransport, component, "bootstrap", "portal request failed", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	portal, err := url.Parse(c.portalURL)
	if err != nil {
		return fmt.Errorf("parse portal url: %w", err)
	}
	for _, cookie := range c.httpClient.Jar.Cookies(portal) {
		if cookie.Name == sessionCookie {
			c.logger.Debug("registry session established", logging.Int("status", resp.StatusCode))
			return nil
		}
	}
	return services.Wrap(services.ErrTransport, component, "bootstrap",
		fmt.Sprintf("portal did not set %s cookie (status %d)", sessionCookie, resp.StatusCode), nil)
}

// Token returns the current auth token, bootstrapping or refreshing it when needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if !c.bootstrap {
		if err := c.bootstrapLocked(ctx); err != nil {
			return "", err
		}
		return c.token, nil
	}
	if c.token != "" && c.now().Sub(c.tokenAt) < c.tokenTTL {
		return c.token, nil
	}
	if err := c.refreshTokenLocked(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

// InvalidateToken forces the next call to perform a fresh handshake.
func (c *Client) InvalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}

func (c *Client) refreshTokenLocked(ctx context.Context) error {
	now := c.now()
	stamp := strconv.FormatInt(now.UnixMilli(), 10)
	sum := md5.Sum([]byte(c.authSecret + stamp))

	form := url.Values{}
	form.Set("authKey", hex.EncodeToString(sum[:]))
	form.Set("timeStamp", stamp)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+pathAuth, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var params authParams
	if _, err := c.do(ctx, req, "auth", &params); err != nil {
		return err
	}
	if strings.TrimSpace(params.Business) == "" {
		return services.Wrap(services.ErrRemote, component, "auth", "empty token in response", nil)
	}
	c.token = params.Business
	c.tokenAt = now
	c.logger.Debug("registry token refreshed")
	return nil
}

// FetchChallenge requests a new click challenge for clientUID.
func (c *Client) FetchChallenge(ctx context.Context, clientUID string) (*Challenge, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := c.jsonRequest(ctx, pathChallenge, map[string]string{"clientUid": clientUID})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Token", token)

	var challenge Challenge
	if _, err := c.do(ctx, req, "challenge", &challenge); err != nil {
		return nil, err
	}
	if challenge.UUID == "" || challenge.SecretKey == "" {
		return nil, services.Wrap(services.ErrRemote, component, "challenge", "incomplete challenge payload", nil)
	}
	return &challenge, nil
}

// VerifyChallenge submits the encrypted click points. An unsuccessful
// verification is reported as services.ErrCaptchaRejected.
func (c *Client) VerifyChallenge(ctx context.Context, verify VerifyRequest) (Credential, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return Credential{}, err
	}
	req, err := c.jsonRequest(ctx, pathVerify, verify)
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Token", token)

	var params verifyParams
	env, err := c.do(ctx, req, "verify", &params)
	if err != nil {
		if env != nil && !env.Success {
			return Credential{}, services.Wrap(services.ErrCaptchaRejected, component, "verify", env.Msg, nil)
		}
		return Credential{}, err
	}
	if params.Sign == "" {
		return Credential{}, services.Wrap(services.ErrCaptchaRejected, component, "verify", "response carried no sign", nil)
	}
	return Credential{Identifier: verify.Token, Sign: params.Sign}, nil
}

// Query performs one paginated filing lookup for a domain or unit name.
func (c *Client) Query(ctx context.Context, cred Credential, name string, page int) (*QueryPage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, services.Wrap(services.ErrValidation, component, "query", "name must not be empty", nil)
	}
	if page < 1 {
		page = 1
	}
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := c.jsonRequest(ctx, pathQuery, queryRequest{
		PageNum:     page,
		PageSize:    c.pageSize,
		UnitName:    name,
		ServiceType: c.serviceType,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Token", token)
	req.Header.Set("Sign", cred.Sign)
	req.Header.Set("Uuid", cred.Identifier)

	var result QueryPage
	if _, err := c.do(ctx, req, "query", &result); err != nil {
		return nil, err
	}
	if result.Total == 0 {
		result.List = nil
	}
	return &result, nil
}

func (c *Client) jsonRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if portal, err := url.Parse(c.portalURL); err == nil {
		req.Header.Set("Origin", portal.Scheme+"://"+portal.Host)
	}
	req.Header.Set("Referer", c.portalURL)
}

// do sends req and decodes the response envelope's params into out. The
// envelope is returned alongside an error when the registry answered with
// success=false, so callers can classify the refusal.
func (c *Client) do(ctx context.Context, req *http.Request, op string, out any) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	c.decorate(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, component, op, fmt.Sprintf("request failed (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrTransport, component, op, fmt.Sprintf("registry returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, services.Wrap(services.ErrTransport, component, op, "decode response", err)
	}
	c.logger.Debug("registry call finished",
		logging.String("op", op),
		logging.Duration("latency", latency),
		logging.Bool("success", env.Success),
	)
	if !env.Success {
		return &env, services.Wrap(services.ErrRemote, component, op, fmt.Sprintf("registry refused: %s (code %d)", env.Msg, env.Code), nil)
	}
	if out != nil && len(env.Params) > 0 && string(env.Params) != "null" {
		if err := json.Unmarshal(env.Params, out); err != nil {
			return &env, services.Wrap(services.ErrRemote, component, op, "decode params", err)
		}
	}
	return &env, nil
}
