package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/lavaplayer/pkg/jobmgr"
)

func newCatalogServer(t *testing.T, tokens *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tkn","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tkn" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/v1/tracks/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + id + `","name":"Song","artists":[{"name":"Band"},{"name":"Guest"}]}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracks":{"items":[{"id":"a","name":"First","artists":[{"name":"X"}]}]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCatalog(srv *httptest.Server) *Catalog {
	return New(Config{
		ClientID:        "id",
		ClientSecret:    "secret",
		TokenURL:        srv.URL + "/api/token",
		APIURL:          srv.URL + "/v1/",
		RefreshInterval: time.Hour,
	}, zerolog.Nop())
}

func TestTrackAfterRefresh(t *testing.T) {
	var tokens atomic.Int32
	srv := newCatalogServer(t, &tokens)
	c := newTestCatalog(srv)

	if _, err := c.Track(context.Background(), "abc"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("before refresh: err = %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	e, err := c.Track(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if e.ID != "abc" || e.Query() != "Song Band" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestSearch(t *testing.T) {
	var tokens atomic.Int32
	srv := newCatalogServer(t, &tokens)
	c := newTestCatalog(srv)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries, err := c.Search(context.Background(), "first", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Query() != "First X" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestStartSchedulesRefresh(t *testing.T) {
	var tokens atomic.Int32
	srv := newCatalogServer(t, &tokens)
	c := newTestCatalog(srv)
	jobs := jobmgr.NewManager(nil)
	defer jobs.Shutdown()

	if err := c.Start(jobs); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for tokens.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tokens.Load() == 0 {
		t.Fatal("token was never requested")
	}
	if got := jobs.List(); len(got) != 1 || got[0] != refreshJob {
		t.Fatalf("jobs = %v", got)
	}
}

func TestDisabledCatalog(t *testing.T) {
	c := New(Config{}, zerolog.Nop())
	if c.Enabled() {
		t.Fatal("catalog without credentials must be disabled")
	}
	if err := c.Start(jobmgr.NewManager(nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Track(context.Background(), "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		id   string
		ok   bool
	}{
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=x", KindTrack, "4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/intl-de/playlist/37i9dQZF1DXcBWIGoYBM5M", KindPlaylist, "37i9dQZF1DXcBWIGoYBM5M", true},
		{"spotify:track:4uLU6hMCjMI75M1A2tKUQC", KindTrack, "4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://youtube.com/watch?v=x", "", "", false},
	}
	for _, tt := range tests {
		kind, id, ok := ParseID(tt.in)
		if kind != tt.kind || id != tt.id || ok != tt.ok {
			t.Errorf("ParseID(%q) = %q, %q, %v", tt.in, kind, id, ok)
		}
	}
}
