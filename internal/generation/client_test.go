package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// completionServer returns an OpenAI-shaped response with the given content.
func completionServer(t *testing.T, content string, gotReq *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGenerateTitles(t *testing.T) {
	var req chatRequest
	srv := completionServer(t, "1. First Title\n2. \"Second Title\"\n\nThird Title\n", &req)
	defer srv.Close()

	client := NewClient(srv.URL, "test-model", "test-key")
	titles, err := client.GenerateTitles(context.Background(), "cloud storage", 3)
	if err != nil {
		t.Fatalf("GenerateTitles: %v", err)
	}

	want := []string{"First Title", "Second Title", "Third Title"}
	if len(titles) != len(want) {
		t.Fatalf("titles = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("titles[%d] = %q, want %q", i, titles[i], want[i])
		}
	}

	if req.Model != "test-model" {
		t.Errorf("model = %q, want test-model", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "cloud storage") {
		t.Errorf("prompt missing topic: %q", req.Messages[1].Content)
	}
}

func TestGenerateTitles_CapsAtCount(t *testing.T) {
	srv := completionServer(t, "A\nB\nC\nD\nE", nil)
	defer srv.Close()

	client := NewClient(srv.URL, "m", "test-key")
	titles, err := client.GenerateTitles(context.Background(), "x", 2)
	if err != nil {
		t.Fatalf("GenerateTitles: %v", err)
	}
	if len(titles) != 2 {
		t.Fatalf("expected 2 titles, got %v", titles)
	}
}

func TestGenerateTitles_EmptyCompletion(t *testing.T) {
	srv := completionServer(t, "   \n  ", nil)
	defer srv.Close()

	client := NewClient(srv.URL, "m", "test-key")
	if _, err := client.GenerateTitles(context.Background(), "x", 3); err == nil {
		t.Fatal("expected error for empty completion")
	}
}

func TestGenerateKeywords(t *testing.T) {
	srv := completionServer(t, "Cloud Backup, object storage,  CDN\nedge caching", nil)
	defer srv.Close()

	client := NewClient(srv.URL, "m", "test-key")
	keywords, err := client.GenerateKeywords(context.Background(), "storage", 10)
	if err != nil {
		t.Fatalf("GenerateKeywords: %v", err)
	}

	want := []string{"cloud backup", "object storage", "cdn", "edge caching"}
	if len(keywords) != len(want) {
		t.Fatalf("keywords = %v, want %v", keywords, want)
	}
	for i := range want {
		if keywords[i] != want[i] {
			t.Errorf("keywords[%d] = %q, want %q", i, keywords[i], want[i])
		}
	}
}

func TestGenerateArticle(t *testing.T) {
	body := "Cloud storage changed how teams ship software. It removed capacity planning from the critical path and let small teams operate like large ones, paying only for what they use.\n\nSecond paragraph here."
	srv := completionServer(t, body, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "m", "test-key")
	article, err := client.GenerateArticle(context.Background(), "Cloud Storage", []string{"cloud", "storage"}, 800)
	if err != nil {
		t.Fatalf("GenerateArticle: %v", err)
	}
	if article.Body != body {
		t.Errorf("body mangled: %q", article.Body)
	}
	if article.MetaDescription == "" {
		t.Fatal("meta description empty")
	}
	if len(article.MetaDescription) > metaDescriptionLimit+4 {
		t.Errorf("meta description too long: %d chars", len(article.MetaDescription))
	}
	if strings.Contains(article.MetaDescription, "\n") {
		t.Error("meta description spans paragraphs")
	}
}

func TestChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "m", "test-key")
	_, err := client.GenerateTitles(context.Background(), "x", 3)
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "m", "test-key")
	if _, err := client.GenerateTitles(context.Background(), "x", 3); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestMetaDescription(t *testing.T) {
	short := "A short lead."
	if got := metaDescription(short); got != short {
		t.Errorf("short lead should pass through, got %q", got)
	}

	long := strings.Repeat("word ", 60)
	got := metaDescription(long)
	if len(got) > metaDescriptionLimit+4 {
		t.Errorf("truncated description too long: %d", len(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated description should end with ellipsis: %q", got)
	}
}

// stubBreaker records breaker calls and optionally denies them.
type stubBreaker struct {
	denied    bool
	allowed   int
	successes int
	failures  int
}

func (b *stubBreaker) Allow(target string) error {
	b.allowed++
	if b.denied {
		return errors.New("circuit breaker is open")
	}
	return nil
}

func (b *stubBreaker) RecordSuccess(target string) { b.successes++ }
func (b *stubBreaker) RecordFailure(target string) { b.failures++ }

func TestChat_BreakerDeniesCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	breaker := &stubBreaker{denied: true}
	client := NewClient(srv.URL, "test-model", "").WithBreaker(breaker)

	if _, err := client.GenerateTitles(context.Background(), "x", 1); err == nil {
		t.Fatal("expected error while breaker open")
	}
	if called {
		t.Error("denied call should not reach the endpoint")
	}
	if breaker.allowed != 1 {
		t.Errorf("expected 1 Allow call, got %d", breaker.allowed)
	}
}

func TestChat_BreakerRecordsOutcomes(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "Title"}}},
			})
		}
	}))
	defer srv.Close()

	breaker := &stubBreaker{}
	client := NewClient(srv.URL, "test-model", "").WithBreaker(breaker)

	client.GenerateTitles(context.Background(), "x", 1)
	if breaker.failures != 1 {
		t.Errorf("expected 1 failure after 500, got %d", breaker.failures)
	}

	status = http.StatusOK
	if _, err := client.GenerateTitles(context.Background(), "x", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breaker.successes != 1 {
		t.Errorf("expected 1 success after 200, got %d", breaker.successes)
	}
}
