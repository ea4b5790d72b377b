package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followback/pkg/analyzer"
	errs "followback/pkg/errors"
	"followback/pkg/logger"
	"followback/pkg/metrics"
	"followback/pkg/ratelimit"
	"followback/pkg/relationships"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProvider struct {
	rel relationships.Relationships
	err error
}

func (p *fakeProvider) FetchRelationships(ctx context.Context, username, password string) (relationships.Relationships, error) {
	return p.rel, p.err
}

// stubAnalyzer records calls and returns a fixed outcome
type stubAnalyzer struct {
	mu        sync.Mutex
	outcome   analyzer.Outcome
	addresses []string
	creds     []analyzer.Credentials
}

func (a *stubAnalyzer) Analyze(ctx context.Context, address string, creds analyzer.Credentials) analyzer.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addresses = append(a.addresses, address)
	a.creds = append(a.creds, creds)
	return a.outcome
}

func (a *stubAnalyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.addresses)
}

var tokenPattern = regexp.MustCompile(`name="token" value="([^"]+)"`)

type testServer struct {
	server  *Server
	clock   *fakeClock
	metrics *metrics.Metrics
	log     *logger.TestLogger
}

func newTestServer(t *testing.T, a Analyzer, opts Options) *testServer {
	t.Helper()

	ts := &testServer{
		clock:   &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
		log:     logger.NewTestLogger(),
	}
	if a == nil {
		a = newRealAnalyzer(t, ts, &fakeProvider{})
	}

	opts.Analyzer = a
	opts.Metrics = ts.metrics
	opts.Logger = ts.log
	opts.Clock = ts.clock.Now
	if opts.SecretKey == "" {
		opts.SecretKey = "test-secret"
	}
	if opts.Version == "" {
		opts.Version = "1.2.3"
	}

	s, err := NewServer(opts)
	require.NoError(t, err)
	ts.server = s
	return ts
}

func newRealAnalyzer(t *testing.T, ts *testServer, provider analyzer.Provider) *analyzer.Analyzer {
	t.Helper()
	limiter, err := ratelimit.New(ratelimit.Options{
		MaxRequests: 3,
		Window:      5 * time.Minute,
		Logger:      logger.NewNopLogger(),
		Metrics:     ts.metrics,
	})
	require.NoError(t, err)
	a, err := analyzer.New(analyzer.Options{
		Limiter:  limiter,
		Provider: provider,
		Clock:    ts.clock.Now,
		Logger:   logger.NewNopLogger(),
		Metrics:  ts.metrics,
	})
	require.NoError(t, err)
	return a
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

// formToken fetches the index page and extracts its token
func (ts *testServer) formToken(t *testing.T) string {
	t.Helper()
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	m := tokenPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2, "index page has a token field")
	return m[1]
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIndexRendersForm(t *testing.T) {
	ts := newTestServer(t, &stubAnalyzer{}, Options{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `name="username"`)
	assert.Contains(t, body, `name="password"`)
	assert.Regexp(t, tokenPattern, body)
	assert.NotContains(t, body, `class="error"`)
}

func TestAnalyzeFlow(t *testing.T) {
	provider := &fakeProvider{rel: relationships.Relationships{
		Following: relationships.Set{
			"1": {Handle: "alice", DisplayName: "Alice A"},
			"2": {Handle: "bob", DisplayName: "Bob B", AvatarURL: "https://cdn.example/bob.jpg"},
		},
		Followers: relationships.Set{
			"1": {Handle: "alice", DisplayName: "Alice A"},
		},
	}}
	ts := newTestServer(t, nil, Options{})
	ts.server.analyzer = newRealAnalyzer(t, ts, provider)

	rec := ts.do(postForm(url.Values{
		"username": {"me"},
		"password": {"pw"},
		"token":    {ts.formToken(t)},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "1 user doesn't follow you back")
	assert.Contains(t, body, `href="https://www.instagram.com/bob/"`)
	assert.Contains(t, body, "@bob")
	assert.Contains(t, body, "Bob B")
	assert.Contains(t, body, `src="https://cdn.example/bob.jpg"`)
	assert.NotContains(t, body, "@alice")
}

func TestAnalyzeEmptyResult(t *testing.T) {
	ts := newTestServer(t, &stubAnalyzer{outcome: analyzer.Outcome{
		Kind:   analyzer.Success,
		Result: relationships.ComputeNonFollowers(nil, nil),
	}}, Options{})

	rec := ts.do(postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {ts.formToken(t)}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0 users don't follow you back")
	assert.Contains(t, rec.Body.String(), "Everyone you follow follows you back.")
}

func TestAnalyzeFailureRerendersForm(t *testing.T) {
	stub := &stubAnalyzer{outcome: analyzer.Outcome{Kind: analyzer.AuthFailed, Reason: "invalid credentials"}}
	ts := newTestServer(t, stub, Options{})

	rec := ts.do(postForm(url.Values{"username": {"  me  "}, "password": {"pw"}, "token": {ts.formToken(t)}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Error: invalid credentials")
	assert.Contains(t, body, `value="me"`)
	assert.Regexp(t, tokenPattern, body, "a fresh token is issued")
	require.Equal(t, 1, stub.Calls())
	assert.Equal(t, analyzer.Credentials{Username: "me", Password: "pw"}, stub.creds[0])
}

func TestExpiredTokenSkipsAnalyzer(t *testing.T) {
	stub := &stubAnalyzer{outcome: analyzer.Outcome{Kind: analyzer.Success}}
	ts := newTestServer(t, stub, Options{FormTokenTTL: 10 * time.Minute})

	token := ts.formToken(t)
	ts.clock.Advance(11 * time.Minute)

	rec := ts.do(postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {token}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), messageFormExpired)
	assert.Contains(t, rec.Body.String(), `value="me"`)
	assert.Equal(t, 0, stub.Calls())
}

func TestInvalidTokenSkipsAnalyzer(t *testing.T) {
	stub := &stubAnalyzer{outcome: analyzer.Outcome{Kind: analyzer.Success}}
	ts := newTestServer(t, stub, Options{})

	other := newTestServer(t, stub, Options{SecretKey: "another-secret"})
	foreign := other.formToken(t)

	for _, token := range []string{"", "not-a-token", foreign} {
		rec := ts.do(postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {token}}))
		assert.Contains(t, rec.Body.String(), messageFormExpired)
	}
	assert.Equal(t, 0, stub.Calls())
}

func TestRateLimitedAfterThreeRequests(t *testing.T) {
	ts := newTestServer(t, nil, Options{})

	var last string
	for i := 0; i < 4; i++ {
		rec := ts.do(postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {ts.formToken(t)}}))
		require.Equal(t, http.StatusOK, rec.Code)
		last = rec.Body.String()
		if i < 3 {
			assert.Contains(t, last, "0 users don't follow you back")
		}
	}
	assert.Contains(t, last, "Error: Too many requests.")

	// Another client address is unaffected
	req := postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {ts.formToken(t)}})
	req.RemoteAddr = "198.51.100.7:4321"
	assert.Contains(t, ts.do(req).Body.String(), "0 users don't follow you back")
}

func TestForwardedForKeying(t *testing.T) {
	stub := &stubAnalyzer{outcome: analyzer.Outcome{Kind: analyzer.ProviderError, Reason: "x"}}

	trusted := newTestServer(t, stub, Options{TrustForwardedFor: true})
	req := postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {trusted.formToken(t)}})
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	trusted.do(req)

	untrusted := newTestServer(t, stub, Options{})
	req = postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {untrusted.formToken(t)}})
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	untrusted.do(req)

	require.Equal(t, 2, stub.Calls())
	assert.Equal(t, "203.0.113.9", stub.addresses[0])
	assert.Equal(t, "192.0.2.1", stub.addresses[1])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &stubAnalyzer{}, Options{})
	ts.clock.Advance(90 * time.Second)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1m30s", body["uptime"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestFaviconAndStatic(t *testing.T) {
	ts := newTestServer(t, &stubAnalyzer{}, Options{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/static/favicon.svg", rec.Header().Get("Location"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/static/favicon.svg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/static/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	ts.do(postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {ts.formToken(t)}}))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `followback_analyze_outcomes_total{outcome="success"} 1`)
	assert.Contains(t, body, `followback_ratelimit_decisions_total{decision="allowed"} 1`)
}

func TestMiddleware(t *testing.T) {
	ts := newTestServer(t, &stubAnalyzer{}, Options{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = ts.do(req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	msg, ok := ts.log.FindMessage("HTTP request completed")
	require.True(t, ok)
	path, _ := msg.Field("path")
	assert.Equal(t, "/health", path)
	status, _ := msg.Field("status")
	assert.Equal(t, http.StatusOK, status)
}

func TestAccessLogOmitsPassword(t *testing.T) {
	ts := newTestServer(t, &stubAnalyzer{outcome: analyzer.Outcome{Kind: analyzer.AuthFailed, Reason: "no"}}, Options{})
	ts.do(postForm(url.Values{"username": {"me"}, "password": {"hunter2"}, "token": {ts.formToken(t)}}))

	for _, msg := range ts.log.GetMessages() {
		assert.NotContains(t, msg.Message, "hunter2")
		for _, v := range msg.Fields {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "hunter2")
			}
		}
	}
}

func TestRecovererReturns500(t *testing.T) {
	log := logger.NewTestLogger()
	h := recoverer(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, log.HasMessage("handler panicked"))
}

func TestNewServerRequiresAnalyzer(t *testing.T) {
	_, err := NewServer(Options{Logger: logger.NewNopLogger()})
	assert.Error(t, err)
}

func TestNewServerWarnsWithoutSecret(t *testing.T) {
	log := logger.NewTestLogger()
	_, err := NewServer(Options{Analyzer: &stubAnalyzer{}, Logger: log})
	require.NoError(t, err)

	msg, ok := log.FindMessage("no secret key configured, using a random key for this process")
	require.True(t, ok)
	assert.Equal(t, "WARN", msg.Level)
}

func TestProviderErrorKinds(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	ts.server.analyzer = newRealAnalyzer(t, ts, &fakeProvider{
		err: errs.New(errs.ErrorTypeServerError, 502, "Instagram server error"),
	})

	rec := ts.do(postForm(url.Values{"username": {"me"}, "password": {"pw"}, "token": {ts.formToken(t)}}))

	assert.Contains(t, rec.Body.String(), "Error: Instagram server error")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, &stubAnalyzer{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- ts.server.Run(ctx, "127.0.0.1:0", time.Second, time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
