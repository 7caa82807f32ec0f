package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tontroys3/AutoWebBuilder/internal/keypool"
	"github.com/tontroys3/AutoWebBuilder/internal/pipeline"
)

func apiServer(t *testing.T, status int, payload any, gotKey *string, gotQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotKey != nil {
			*gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		}
		if gotQuery != nil {
			*gotQuery = r.URL.Query().Get("q")
		}
		w.WriteHeader(status)
		if payload != nil {
			json.NewEncoder(w).Encode(payload)
		}
	}))
}

func TestSearchImages(t *testing.T) {
	payload := map[string]any{
		"value": []map[string]any{
			{
				"contentUrl":       "https://cdn.example.com/a.jpg",
				"thumbnailUrl":     "https://cdn.example.com/a-thumb.jpg",
				"name":             "Mountain Lake",
				"width":            1600,
				"height":           900,
				"encodingFormat":   "Jpeg",
				"hostPageUrl":      "https://example.com/lakes",
				"isFamilyFriendly": true,
			},
			{
				// Relative URL: dropped.
				"contentUrl": "/no-scheme.jpg",
			},
			{
				"contentUrl":       "https://cdn.example.com/b.png",
				"name":             "Skyline",
				"width":            800,
				"height":           1200,
				"isFamilyFriendly": false,
			},
		},
	}

	var gotKey, gotQuery string
	srv := apiServer(t, http.StatusOK, payload, &gotKey, &gotQuery)
	defer srv.Close()

	client := NewClient(srv.URL, 1000)
	images, err := client.SearchImages(context.Background(), keypool.Credential{Key: "cred-1"}, "mountain lake", 10)
	if err != nil {
		t.Fatalf("SearchImages: %v", err)
	}

	if gotKey != "cred-1" {
		t.Errorf("subscription key = %q, want cred-1", gotKey)
	}
	if gotQuery != "mountain lake" {
		t.Errorf("query = %q, want %q", gotQuery, "mountain lake")
	}

	if len(images) != 2 {
		t.Fatalf("expected 2 images (relative URL dropped), got %d", len(images))
	}
	first := images[0]
	if first.URL != "https://cdn.example.com/a.jpg" || first.Name != "Mountain Lake" {
		t.Errorf("first image wrong: %+v", first)
	}
	if first.Width != 1600 || first.Height != 900 {
		t.Errorf("dimensions wrong: %+v", first)
	}
	if first.Format != "jpeg" {
		t.Errorf("format should be lowercased, got %q", first.Format)
	}
	if !first.FamilyFriendly {
		t.Error("first image should be family-friendly")
	}
	if images[1].FamilyFriendly {
		t.Error("second image should not be family-friendly")
	}
	if first.Source != "api" {
		t.Errorf("source = %q, want api", first.Source)
	}
}

func TestSearchImages_MissingFamilyFriendlyDefaultsTrue(t *testing.T) {
	payload := map[string]any{
		"value": []map[string]any{
			{"contentUrl": "https://cdn.example.com/a.jpg"},
		},
	}
	srv := apiServer(t, http.StatusOK, payload, nil, nil)
	defer srv.Close()

	client := NewClient(srv.URL, 1000)
	images, err := client.SearchImages(context.Background(), keypool.Credential{Key: "k"}, "q", 5)
	if err != nil {
		t.Fatalf("SearchImages: %v", err)
	}
	if len(images) != 1 || !images[0].FamilyFriendly {
		t.Fatalf("absent isFamilyFriendly should default true: %+v", images)
	}
}

func TestSearchImages_ThrottleMapsToSentinel(t *testing.T) {
	srv := apiServer(t, http.StatusTooManyRequests, nil, nil, nil)
	defer srv.Close()

	client := NewClient(srv.URL, 1000)
	_, err := client.SearchImages(context.Background(), keypool.Credential{Key: "k"}, "q", 5)
	if !errors.Is(err, pipeline.ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

func TestSearchImages_ServerError(t *testing.T) {
	srv := apiServer(t, http.StatusInternalServerError, nil, nil, nil)
	defer srv.Close()

	client := NewClient(srv.URL, 1000)
	_, err := client.SearchImages(context.Background(), keypool.Credential{Key: "k"}, "q", 5)
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if errors.Is(err, pipeline.ErrThrottled) {
		t.Fatal("a 500 is not a throttle")
	}
}

func TestSearchImages_CountCappedAtAPILimit(t *testing.T) {
	var gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCount = r.URL.Query().Get("count")
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 1000)
	if _, err := client.SearchImages(context.Background(), keypool.Credential{Key: "k"}, "q", 500); err != nil {
		t.Fatalf("SearchImages: %v", err)
	}
	if gotCount != "150" {
		t.Errorf("count = %q, want capped 150", gotCount)
	}
}

func TestValidImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/a.jpg", true},
		{"https://cdn.example.com/a.JPG?x=1", true},
		{"https://cdn.example.com/photos/12345", true},
		{"https://cdn.example.com/file.pdf", false},
		{"/relative.jpg", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := validImageURL(tt.url); got != tt.want {
			t.Errorf("validImageURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

// stubBreaker records breaker calls and optionally denies them.
type stubBreaker struct {
	denied    bool
	successes int
	failures  int
}

func (b *stubBreaker) Allow(target string) error {
	if b.denied {
		return errors.New("circuit breaker is open")
	}
	return nil
}

func (b *stubBreaker) RecordSuccess(target string) { b.successes++ }
func (b *stubBreaker) RecordFailure(target string) { b.failures++ }

func TestSearchImages_BreakerDeniesCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 100).WithBreaker(&stubBreaker{denied: true})

	_, err := client.SearchImages(context.Background(), keypool.Credential{Key: "k"}, "q", 10)
	if err == nil {
		t.Fatal("expected error while breaker open")
	}
	if called {
		t.Error("denied call should not reach the endpoint")
	}
}

func TestSearchImages_BreakerOutcomes(t *testing.T) {
	breaker := &stubBreaker{}

	srv := apiServer(t, http.StatusInternalServerError, nil, nil, nil)
	client := NewClient(srv.URL, 100).WithBreaker(breaker)
	client.SearchImages(context.Background(), keypool.Credential{Key: "k"}, "q", 10)
	srv.Close()
	if breaker.failures != 1 {
		t.Errorf("expected 1 failure after 500, got %d", breaker.failures)
	}

	// A throttle answer proves the endpoint is up: success for the breaker.
	srv = apiServer(t, http.StatusTooManyRequests, nil, nil, nil)
	client = NewClient(srv.URL, 100).WithBreaker(breaker)
	client.SearchImages(context.Background(), keypool.Credential{Key: "k"}, "q", 10)
	srv.Close()
	if breaker.successes != 1 {
		t.Errorf("expected 1 success after 429, got %d", breaker.successes)
	}
}
