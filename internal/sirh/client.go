package sirh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/config"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

// Endpoint names used for metrics labels.
const (
	EndpointSessions     = "sessions"
	EndpointCount        = "sessions_count"
	EndpointSessionUsers = "session_users"
)

const maxErrorBody = 512

// Observer records the outcome of each registry call.
type Observer interface {
	ObserveRegistryCall(endpoint string, status int, duration time.Duration)
}

// Client issues typed queries against the SIRH registry HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   Observer
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithObserver records call metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a registry client from configuration.
func NewClient(cfg config.SIRHConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListSessions returns the sessions matching the filter.
func (c *Client) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.RosterSession, error) {
	query, err := sessionQuery(filter)
	if err != nil {
		return nil, err
	}
	var page sessionPage
	if err := c.get(ctx, EndpointSessions, "/sessions", query, &page); err != nil {
		return nil, err
	}
	sessions := make([]models.RosterSession, 0, len(page.Content))
	for _, s := range page.Content {
		sessions = append(sessions, s.toModel())
	}
	return sessions, nil
}

// CountSessions returns the number of sessions matching the filter. On failure the
// count is 0 and the error is returned alongside it.
func (c *Client) CountSessions(ctx context.Context, filter models.SessionFilter) (int, error) {
	query, err := sessionQuery(filter)
	if err != nil {
		return 0, err
	}
	query.Del("taille")
	query.Del("page")
	query.Del("tri")
	var env countEnvelope
	if err := c.get(ctx, EndpointCount, "/sessions/count", query, &env); err != nil {
		return 0, err
	}
	return env.TotalElements, nil
}

// ListSessionUsers pulls the roster of one session. maxUsers truncates the returned
// users (0 means unlimited) while TotalUserCount keeps the registry total. since is
// forwarded to the registry, which uses it to compute the change indicators.
func (c *Client) ListSessionUsers(ctx context.Context, registryID, trainingID, sessionID string, maxUsers int, since *time.Time) (*models.SessionUsers, error) {
	if registryID == "" || trainingID == "" || sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingKey, "registry, training and session identifiers are required")
	}
	path := fmt.Sprintf("/sirh/%s/formations/%s/sessions/%s/inscriptions",
		url.PathEscape(registryID), url.PathEscape(trainingID), url.PathEscape(sessionID))

	query := url.Values{}
	if maxUsers > 0 {
		query.Set("nombreUtilisateursMax", strconv.Itoa(maxUsers))
	}
	if since != nil && !since.IsZero() {
		query.Set("dateDerniereSynchronisation", strconv.FormatInt(since.Unix(), 10))
	}

	var env sessionUsersEnvelope
	if err := c.get(ctx, EndpointSessionUsers, path, query, &env); err != nil {
		return nil, err
	}

	users := make([]models.RosterUser, 0, len(env.Users))
	for _, u := range env.Users {
		users = append(users, models.NewRosterUser(u.Email, u.FirstName, u.LastName))
	}
	total := env.EnrolledCount
	if total < len(users) {
		total = len(users)
	}
	if maxUsers > 0 && len(users) > maxUsers {
		users = users[:maxUsers]
	}

	result := &models.SessionUsers{
		Users:          users,
		TotalUserCount: total,
		SessionChanged: env.SessionChanged,
		RosterChanged:  env.RosterChanged,
	}
	if env.Session != nil {
		session := env.Session.toModel()
		if session.RegistryID == "" {
			session.RegistryID = registryID
		}
		if session.TrainingExternalID == "" {
			session.TrainingExternalID = trainingID
		}
		if session.SessionExternalID == "" {
			session.SessionExternalID = sessionID
		}
		result.Session = &session
	}
	return result, nil
}

func sessionQuery(filter models.SessionFilter) (url.Values, error) {
	codes := make([]string, 0, len(filter.RegistryCodes))
	for _, code := range filter.RegistryCodes {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil, appErrors.ErrMissingFilter
	}

	query := url.Values{}
	query.Set("sirh", strings.Join(codes, ","))
	if filter.PageSize > 0 {
		query.Set("taille", strconv.Itoa(filter.PageSize))
	}
	if filter.PageNumber > 0 {
		query.Set("page", strconv.Itoa(filter.PageNumber))
	}
	if filter.OrderByInstance {
		query.Set("tri", "instance")
		if len(filter.ExcludeInstances) > 0 {
			query.Set("instances", strings.Join(filter.ExcludeInstances, ","))
		}
	}
	if filter.TrainingLabel != "" {
		query.Set("libelleFormation", filter.TrainingLabel)
	}
	if filter.SessionLabel != "" {
		query.Set("libelleSession", filter.SessionLabel)
	}
	return query, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, dest interface{}) error {
	start := time.Now()
	status, err := c.do(ctx, path, query, dest)
	if c.observer != nil {
		c.observer.ObserveRegistryCall(endpoint, status, time.Since(start))
	}
	if err != nil {
		c.logger.Warn("sirh registry call failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", status),
			zap.Error(err),
		)
		return appErrors.WrapAs(appErrors.ErrRegistryUnavailable, err, "")
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values, dest interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        target,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
