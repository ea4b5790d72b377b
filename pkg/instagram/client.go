package instagram

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"followback/pkg/config"
	"followback/pkg/errors"
	"followback/pkg/logger"
	"followback/pkg/relationships"
)

// maxBodySize caps how much of a response body is read
const maxBodySize = 16 << 20

// Options configures a Client
type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	PageSize          int
	MaxPages          int
	RequestsPerSecond float64
	Logger            logger.Logger

	// Transport overrides the HTTP transport, mainly for tests
	Transport http.RoundTripper
}

// Client fetches follow relationships from Instagram's private API.
// Every FetchRelationships call logs in with its own session, so one Client
// is safe to share between concurrent requests for different accounts.
type Client struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	pageSize  int
	maxPages  int
	limiter   *rate.Limiter
	transport http.RoundTripper
	logger    logger.Logger
	now       func() time.Time
}

// NewClient creates a new Instagram API client
func NewClient(opts Options) *Client {
	// Use default logger if none provided
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		pageSize:  opts.PageSize,
		maxPages:  opts.MaxPages,
		limiter:   rate.NewLimiter(limit, 1),
		transport: opts.Transport,
		logger:    opts.Logger.WithField("component", "instagram"),
		now:       time.Now,
	}
}

// NewClientFromConfig creates a client from the instagram config section
func NewClientFromConfig(cfg *config.InstagramConfig, log logger.Logger) *Client {
	return NewClient(Options{
		BaseURL:           cfg.BaseURL,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.Timeout,
		PageSize:          cfg.PageSize,
		MaxPages:          cfg.MaxPages,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            log,
	})
}

// FetchRelationships logs in as username and returns its followers and
// following. Credentials are used for this call only.
func (c *Client) FetchRelationships(ctx context.Context, username, password string) (relationships.Relationships, error) {
	s, err := c.newSession()
	if err != nil {
		return relationships.Relationships{}, err
	}

	user, err := s.login(ctx, username, password)
	if err != nil {
		return relationships.Relationships{}, err
	}

	followers, err := s.fetchList(ctx, user.PK, Followers)
	if err != nil {
		return relationships.Relationships{}, err
	}

	following, err := s.fetchList(ctx, user.PK, Following)
	if err != nil {
		return relationships.Relationships{}, err
	}

	c.logger.InfoWithFields("fetched relationships", map[string]interface{}{
		"username":  user.Username,
		"followers": len(followers),
		"following": len(following),
	})

	return relationships.Relationships{Followers: followers, Following: following}, nil
}

// session is one logged-in conversation with the API
type session struct {
	*Client
	http          *http.Client
	deviceID      string
	authorization string
}

func (c *Client) newSession() (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnknown, 0, "failed to create cookie jar")
	}
	return &session{
		Client: c,
		http: &http.Client{
			Timeout:   c.timeout,
			Jar:       jar,
			Transport: c.transport,
		},
		deviceID: uuid.NewString(),
	}, nil
}

// login authenticates and returns the logged in account
func (s *session) login(ctx context.Context, username, password string) (*LoggedInUser, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("enc_password", encodePassword(password, s.now().Unix()))
	form.Set("device_id", s.deviceID)
	form.Set("login_attempt_count", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, GetLoginURL(s.baseURL), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnknown, 0, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	s.logger.DebugWithFields("logging in", map[string]interface{}{
		"username": username,
	})

	var response LoginResponse
	header, err := s.doJSON(req, &response)
	if err != nil {
		return nil, err
	}

	if response.Status != "ok" || response.LoggedInUser == nil {
		return nil, loginFailure(&response)
	}
	if response.LoggedInUser.PK == "" {
		return nil, errors.New(errors.ErrorTypeParsing, http.StatusOK, "login response did not include a user id")
	}

	if auth := header.Get("ig-set-authorization"); auth != "" {
		s.authorization = auth
	}

	s.logger.DebugWithFields("logged in", map[string]interface{}{
		"username": response.LoggedInUser.Username,
		"user_id":  response.LoggedInUser.PK,
	})

	return response.LoggedInUser, nil
}

// fetchList walks every page of one follow list
func (s *session) fetchList(ctx context.Context, userID FlexID, list ListType) (relationships.Set, error) {
	set := make(relationships.Set)
	maxID := ""

	for page := 1; ; page++ {
		pageURL := GetFriendshipsURL(s.baseURL, string(userID), list, s.pageSize, maxID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeUnknown, 0, fmt.Sprintf("failed to create request: %v", err))
		}

		var response FriendshipsResponse
		if _, err := s.doJSON(req, &response); err != nil {
			s.logger.WithError(err).ErrorWithFields("failed to fetch list page", map[string]interface{}{
				"list": list.String(),
				"page": page,
			})
			return nil, err
		}
		if response.Status == "fail" {
			return nil, statusFailure(http.StatusOK, response.Status, response.Message, "")
		}

		for _, u := range response.Users {
			id := u.PK.AccountID()
			if id == "" {
				s.logger.DebugWithFields("skipping user without id", map[string]interface{}{
					"username": u.Username,
				})
				continue
			}
			set[id] = u.Profile()
		}

		s.logger.DebugWithFields("fetched list page", map[string]interface{}{
			"list":  list.String(),
			"page":  page,
			"users": len(response.Users),
			"total": len(set),
		})

		maxID = string(response.NextMaxID)
		if maxID == "" {
			return set, nil
		}
		if page >= s.maxPages {
			s.logger.WarnWithFields("page limit reached, list is incomplete", map[string]interface{}{
				"list":      list.String(),
				"max_pages": s.maxPages,
				"total":     len(set),
			})
			return set, nil
		}
	}
}

// doJSON sends req and decodes a 200 response body into target
func (s *session) doJSON(req *http.Request, target interface{}) (http.Header, error) {
	resp, err := s.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNetwork, resp.StatusCode, fmt.Sprintf("failed to read response body: %v", err))
	}

	if err := s.checkResponseStatus(resp, body); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(body, target); err != nil {
		// Create a preview of the body for debugging
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		s.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.Path,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return nil, errors.Wrap(err, errors.ErrorTypeParsing, resp.StatusCode, fmt.Sprintf("failed to parse JSON: %v", err))
	}

	return resp.Header, nil
}

// doRequest paces, decorates and sends req
func (s *session) doRequest(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNetwork, 0, "request cancelled while waiting for rate limit")
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-IG-App-ID", AppID)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US")
	if s.authorization != "" {
		req.Header.Set("Authorization", s.authorization)
	}
	if token := s.csrfToken(req.URL); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}

	// Log the request
	start := time.Now()
	s.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"path":   req.URL.Path,
	})

	resp, err := s.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		s.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"path":     req.URL.Path,
			"error":    err.Error(),
			"duration": duration,
		})
		switch {
		case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, errors.Wrap(err, errors.ErrorTypeNetwork, 0, "request to Instagram timed out")
		case ctx.Err() != nil:
			return nil, errors.Wrap(err, errors.ErrorTypeNetwork, 0, "request to Instagram was cancelled")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeNetwork, 0, fmt.Sprintf("network error: %v", err))
	}

	s.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

func (s *session) csrfToken(u *url.URL) string {
	if s.http.Jar == nil {
		return ""
	}
	for _, cookie := range s.http.Jar.Cookies(u) {
		if cookie.Name == "csrftoken" {
			return cookie.Value
		}
	}
	return ""
}

// checkResponseStatus checks the HTTP response status and returns appropriate errors
func (s *session) checkResponseStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var status apiStatus
	_ = json.Unmarshal(body, &status)

	fields := map[string]interface{}{
		"status":     resp.StatusCode,
		"path":       resp.Request.URL.Path,
		"error_type": status.ErrorType,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		s.logger.WarnWithFields("rate limit exceeded", fields)
		return errors.New(errors.ErrorTypeRateLimit, resp.StatusCode, "Instagram is throttling requests, try again later")
	case resp.StatusCode >= 500:
		s.logger.ErrorWithFields("server error", fields)
		return errors.New(errors.ErrorTypeServerError, resp.StatusCode, "Instagram server error")
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		s.logger.WarnWithFields("request rejected", fields)
		return statusFailure(resp.StatusCode, status.Status, status.Message, status.ErrorType)
	case resp.StatusCode == http.StatusNotFound:
		s.logger.WarnWithFields("resource not found", fields)
		return errors.New(errors.ErrorTypeNotFound, resp.StatusCode, "resource not found")
	case resp.StatusCode >= 400:
		s.logger.ErrorWithFields("unexpected API error", fields)
		return errors.New(errors.ErrorTypeUnknown, resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	default:
		return nil
	}
}

// loginErrorTypes are error_type values that mean the credentials were not accepted
var loginErrorTypes = map[string]bool{
	"bad_password":                  true,
	"invalid_user":                  true,
	"invalid_credentials":           true,
	"two_factor_required":           true,
	"checkpoint_challenge_required": true,
	"challenge_required":            true,
	"login_required":                true,
	"sentry_block":                  true,
}

// isLoginRelated reports whether a failed body is about authentication
func isLoginRelated(message, errorType string) bool {
	if loginErrorTypes[errorType] {
		return true
	}
	msg := strings.ToLower(message)
	for _, hint := range []string{"password", "login", "log in", "checkpoint", "challenge", "two-factor", "username"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// statusFailure classifies a rejected request
func statusFailure(code int, status, message, errorType string) error {
	if message == "" {
		message = http.StatusText(code)
	}
	if code == http.StatusUnauthorized || isLoginRelated(message, errorType) {
		return errors.New(errors.ErrorTypeAuth, code, message)
	}
	if errorType == "rate_limit_error" {
		return errors.New(errors.ErrorTypeRateLimit, code, message)
	}
	return errors.New(errors.ErrorTypeUnknown, code, message)
}

// loginFailure builds the auth error for a login body with status fail
func loginFailure(r *LoginResponse) error {
	switch {
	case r.TwoFactorRequired:
		return errors.New(errors.ErrorTypeAuth, http.StatusOK, "two-factor authentication is required for this account")
	case r.CheckpointURL != "":
		return errors.New(errors.ErrorTypeAuth, http.StatusOK, "Instagram requires a security checkpoint, log in from the app first")
	case r.Message != "":
		return errors.New(errors.ErrorTypeAuth, http.StatusOK, r.Message)
	default:
		return errors.New(errors.ErrorTypeAuth, http.StatusOK, "login failed")
	}
}
