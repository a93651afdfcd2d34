// Package reference is a typed client for the public catalog API that serves
// spells, classes, races, equipment, conditions, magic items and monsters.
package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/TheTechChild/dnd-character-builder/internal/category"
)

//go:generate mockgen -source=client.go -destination=../mocks/reference/mock_client.go -package=mock_reference

const (
	DefaultBaseURL      = "https://api.open5e.com"
	DefaultRequestDelay = 100 * time.Millisecond
	DefaultTimeout      = 15 * time.Second
	DefaultPageLimit    = 100
	MinSearchLength     = 2
)

var (
	ErrQueryTooShort   = fmt.Errorf("search query must be at least %d characters", MinSearchLength)
	ErrUnknownCategory = category.ErrUnknownCategory
	ErrPaginationLoop  = errors.New("pagination returned an already visited page")
)

var endpoints = map[category.Category]string{
	category.Spells:     "/v1/spells/",
	category.Classes:    "/v1/classes/",
	category.Races:      "/v1/races/",
	category.Equipment:  "/v1/weapons/",
	category.Conditions: "/v1/conditions/",
	category.MagicItems: "/v1/magicitems/",
	category.Monsters:   "/v1/monsters/",
}

// Client fetches reference content. Items are returned undecoded; see Decode.
type Client interface {
	ListPage(ctx context.Context, cat category.Category, opts ListOptions) (*Page, error)
	ListAll(ctx context.Context, cat category.Category) ([]json.RawMessage, error)
	Get(ctx context.Context, cat category.Category, slug string) (json.RawMessage, error)
	Search(ctx context.Context, cat category.Category, query string) ([]json.RawMessage, error)
}

// Page is the list envelope returned by the API.
type Page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

// ListOptions selects a page. Cursor, when set, is a next/previous URL from a
// previous Page and takes precedence over the other fields.
type ListOptions struct {
	Limit  int
	Search string
	Cursor string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("response error %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

type Config struct {
	BaseURL       string
	RequestDelay  time.Duration
	Timeout       time.Duration
	RetryAttempts uint
	PageLimit     int
}

type HTTPClient struct {
	httpClient    *resty.Client
	limiter       *rate.Limiter
	retryAttempts uint
	pageLimit     int
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	client.SetTimeout(cfg.Timeout)

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &HTTPClient{
		httpClient:    client,
		limiter:       rate.NewLimiter(limit, 1),
		retryAttempts: cfg.RetryAttempts,
		pageLimit:     cfg.PageLimit,
	}
}

func (client *HTTPClient) Close() error {
	return client.httpClient.Close()
}

func endpoint(cat category.Category) (string, error) {
	path, ok := endpoints[cat]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	return path, nil
}

func (client *HTTPClient) ListPage(ctx context.Context, cat category.Category, opts ListOptions) (*Page, error) {
	if opts.Cursor != "" {
		return client.fetchPage(ctx, opts.Cursor, nil)
	}
	path, err := endpoint(cat)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = client.pageLimit
	}
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if opts.Search != "" {
		query["search"] = opts.Search
	}
	return client.fetchPage(ctx, path, query)
}

// ListAll follows next links until the last page.
func (client *HTTPClient) ListAll(ctx context.Context, cat category.Category) ([]json.RawMessage, error) {
	page, err := client.ListPage(ctx, cat, ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("ListPage(%s) > %w", cat, err)
	}
	items := append([]json.RawMessage(nil), page.Results...)
	visited := map[string]struct{}{}
	for page.Next != nil && *page.Next != "" {
		next := *page.Next
		if _, ok := visited[next]; ok {
			return nil, fmt.Errorf("%w: %s", ErrPaginationLoop, next)
		}
		visited[next] = struct{}{}

		page, err = client.fetchPage(ctx, next, nil)
		if err != nil {
			return nil, fmt.Errorf("fetchPage(%s) > %w", next, err)
		}
		items = append(items, page.Results...)
	}
	return items, nil
}

func (client *HTTPClient) Get(ctx context.Context, cat category.Category, slug string) (json.RawMessage, error) {
	path, err := endpoint(cat)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(slug) == "" {
		return nil, errors.New("slug must not be empty")
	}
	var item json.RawMessage
	if err := client.get(ctx, path+slug+"/", nil, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Search returns the first page of items matching query.
func (client *HTTPClient) Search(ctx context.Context, cat category.Category, query string) ([]json.RawMessage, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLength {
		return nil, ErrQueryTooShort
	}
	page, err := client.ListPage(ctx, cat, ListOptions{Search: query})
	if err != nil {
		return nil, fmt.Errorf("ListPage(%s, search=%q) > %w", cat, query, err)
	}
	return page.Results, nil
}

func (client *HTTPClient) fetchPage(ctx context.Context, rawURL string, query map[string]string) (*Page, error) {
	var page Page
	if err := client.get(ctx, rawURL, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// get performs one paced GET, retrying retryable failures when configured.
func (client *HTTPClient) get(ctx context.Context, rawURL string, query map[string]string, result any) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = client.getOnce(ctx, rawURL, query, result)
			if lastErr != nil && !isRetryableError(lastErr) {
				return retry.Unrecoverable(lastErr)
			}
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(client.retryAttempts+1),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func (client *HTTPClient) getOnce(ctx context.Context, rawURL string, query map[string]string, result any) error {
	if err := client.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("limiter.Wait() > %w", err)
	}

	request := client.httpClient.R().SetContext(ctx)
	if len(query) > 0 {
		request.SetQueryParams(query)
	}
	response, err := request.Get(rawURL)
	if err != nil {
		return fmt.Errorf("httpClient.Get(%s) > %w", rawURL, err)
	}
	if response.IsError() {
		return &StatusError{StatusCode: response.StatusCode(), URL: rawURL, Body: response.String()}
	}
	slog.Default().Debug("reference api response",
		slog.String("url", rawURL),
		slog.Int("status", response.StatusCode()),
	)
	if err := json.Unmarshal([]byte(response.String()), result); err != nil {
		return fmt.Errorf("json.Unmarshal(%s) > %w", rawURL, err)
	}
	return nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
