package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheTechChild/dnd-character-builder/internal/category"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL
	client := NewHTTPClient(cfg)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestHTTPClient_ListAll(t *testing.T) {
	var serverURL string
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/spells/", r.URL.Path)
		switch r.URL.Query().Get("page") {
		case "":
			assert.Equal(t, "100", r.URL.Query().Get("limit"))
			next := serverURL + "/v1/spells/?limit=100&page=2"
			writeJSON(t, w, http.StatusOK, map[string]any{
				"count":    3,
				"next":     next,
				"previous": nil,
				"results": []map[string]any{
					{"slug": "acid-splash", "name": "Acid Splash", "level_int": 0},
					{"slug": "fireball", "name": "Fireball", "level_int": 3},
				},
			})
		case "2":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"count":   3,
				"next":    nil,
				"results": []map[string]any{{"slug": "wish", "name": "Wish", "level_int": 9}},
			})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}
	server := httptest.NewServer(http.HandlerFunc(handler))
	defer server.Close()
	serverURL = server.URL

	client := NewHTTPClient(Config{BaseURL: server.URL})
	defer client.Close()

	items, err := client.ListAll(context.Background(), category.Spells)
	require.NoError(t, err)

	spells, err := DecodeAll[Spell](items)
	require.NoError(t, err)
	require.Len(t, spells, 3)
	assert.Equal(t, "acid-splash", spells[0].Slug)
	assert.Equal(t, 3, spells[1].LevelInt)
	assert.Equal(t, "Wish", spells[2].Name)
}

func TestHTTPClient_ListAll_PaginationLoop(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"count":   1,
			"next":    serverURL + "/v1/races/?page=2",
			"results": []map[string]any{{"slug": "elf"}},
		})
	}))
	defer server.Close()
	serverURL = server.URL

	client := NewHTTPClient(Config{BaseURL: server.URL})
	defer client.Close()

	_, err := client.ListAll(context.Background(), category.Races)
	assert.ErrorIs(t, err, ErrPaginationLoop)
}

func TestHTTPClient_Get(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/monsters/goblin/", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"slug":             "goblin",
			"name":             "Goblin",
			"armor_class":      15,
			"hit_points":       7,
			"challenge_rating": "1/4",
		})
	}, Config{})

	raw, err := client.Get(context.Background(), category.Monsters, "goblin")
	require.NoError(t, err)

	monster, err := Decode[Monster](raw)
	require.NoError(t, err)
	assert.Equal(t, Monster{
		Summary:         Summary{Slug: "goblin", Name: "Goblin"},
		ArmorClass:      15,
		HitPoints:       7,
		ChallengeRating: "1/4",
	}, monster)
}

func TestHTTPClient_Search(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantErr   error
		wantCalls int32
		wantSlugs []string
	}{
		{name: "too short", query: "f", wantErr: ErrQueryTooShort},
		{name: "too short after trimming", query: "  f  ", wantErr: ErrQueryTooShort},
		{name: "valid query", query: " fire ", wantCalls: 1, wantSlugs: []string{"fireball", "fire-bolt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				assert.Equal(t, "fire", r.URL.Query().Get("search"))
				writeJSON(t, w, http.StatusOK, map[string]any{
					"count":   2,
					"results": []map[string]any{{"slug": "fireball"}, {"slug": "fire-bolt"}},
				})
			}, Config{})

			items, err := client.Search(context.Background(), category.Spells, tt.query)
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			slugs := make([]string, 0, len(items))
			for _, item := range items {
				slug, ok := SlugOf(item)
				require.True(t, ok)
				slugs = append(slugs, slug)
			}
			assert.Equal(t, tt.wantSlugs, slugs)
		})
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name           string
		category       category.Category
		handler        http.HandlerFunc
		wantStatusCode int
		wantContains   string
	}{
		{
			name:     "not found",
			category: category.Spells,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail":"Not found."}`))
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:     "server error is not retried by default",
			category: category.Spells,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantStatusCode: http.StatusServiceUnavailable,
		},
		{
			name:     "malformed json",
			category: category.Spells,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"slug": "fireball",`))
			},
			wantContains: "json.Unmarshal",
		},
		{
			name:     "unknown category",
			category: category.Category("feats"),
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Error("no request expected")
			},
			wantContains: "unknown category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}, Config{})

			_, err := client.Get(context.Background(), tt.category, "fireball")
			require.Error(t, err)
			if tt.wantStatusCode != 0 {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.wantStatusCode, statusErr.StatusCode)
				assert.Equal(t, int32(1), calls.Load())
			}
			if tt.wantContains != "" {
				assert.Contains(t, err.Error(), tt.wantContains)
			}
		})
	}
}

func TestHTTPClient_RetryWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"slug": "prone", "name": "Prone"})
	}, Config{RetryAttempts: 2})

	raw, err := client.Get(context.Background(), category.Conditions, "prone")
	require.NoError(t, err)
	condition, err := Decode[Condition](raw)
	require.NoError(t, err)
	assert.Equal(t, "Prone", condition.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPClient_RetriesDroppedConnections(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"slug": "prone", "name": "Prone"})
	}, Config{RetryAttempts: 1})

	raw, err := client.Get(context.Background(), category.Conditions, "prone")
	require.NoError(t, err)
	slug, ok := SlugOf(raw)
	assert.True(t, ok)
	assert.Equal(t, "prone", slug)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIsRetryableError(t *testing.T) {
	transportErr := &url.Error{Op: "Get", URL: "http://localhost/v1/spells/", Err: errors.New("connection reset by peer")}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server error", err: &StatusError{StatusCode: http.StatusServiceUnavailable}, want: true},
		{name: "too many requests", err: &StatusError{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "not found", err: &StatusError{StatusCode: http.StatusNotFound}, want: false},
		{name: "wrapped transport error", err: fmt.Errorf("request failed > %w", transportErr), want: true},
		{name: "network error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: true},
		{name: "canceled request", err: &url.Error{Op: "Get", URL: "http://localhost", Err: context.Canceled}, want: false},
		{name: "message alone is not enough", err: errors.New("httpClient.Get(/v1/spells/) > boom"), want: false},
		{name: "malformed body", err: fmt.Errorf("json.Unmarshal(/v1/spells/) > %w", errors.New("unexpected end of JSON input")), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestHTTPClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, Config{RetryAttempts: 3})

	_, err := client.Get(context.Background(), category.Classes, "wizard")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_RequestDelay(t *testing.T) {
	delay := 60 * time.Millisecond
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"slug": "x"})
	}, Config{RequestDelay: delay})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), category.MagicItems, "x")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 2*delay-5*time.Millisecond)
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"slug": "x"})
	}, Config{RequestDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.Get(ctx, category.Spells, "x")
	require.NoError(t, err)

	cancel()
	_, err = client.Get(ctx, category.Spells, "x")
	assert.Error(t, err)
}

func TestSlugOf(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{name: "with slug", raw: `{"slug":"elf","name":"Elf"}`, want: "elf", wantOK: true},
		{name: "empty slug", raw: `{"slug":"","name":"Elf"}`},
		{name: "no slug", raw: `{"name":"Elf"}`},
		{name: "not an object", raw: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SlugOf(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
