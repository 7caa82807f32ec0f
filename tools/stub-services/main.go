// Command stub-services fakes the text-generation and image-search
// backends so autocontentd can be exercised locally without real
// credentials. Point GENERATOR_URL at /v1/chat/completions and
// IMAGE_API_URL at /images/search.
//
// THROTTLE_EVERY=n answers every n-th image search with a 429 to
// exercise credential rotation.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type stats struct {
	ChatCalls  int64  `json:"chat_calls"`
	ImageCalls int64  `json:"image_calls"`
	Throttled  int64  `json:"throttled"`
	Since      string `json:"since"`
}

var (
	mu            sync.Mutex
	chatCalls     int64
	imageCalls    int64
	throttled     int64
	since         time.Time
	throttleEvery int64
)

func main() {
	since = time.Now().UTC()

	addr := ":9090"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}
	if v := os.Getenv("THROTTLE_EVERY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			log.Fatalf("invalid THROTTLE_EVERY: %q", v)
		}
		throttleEvery = n
	}

	http.HandleFunc("/v1/chat/completions", chatHandler)
	http.HandleFunc("/images/search", imageHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		chatCalls = 0
		imageCalls = 0
		throttled = 0
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("stub-services listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func chatHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Messages) == 0 {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	prompt := req.Messages[len(req.Messages)-1].Content

	mu.Lock()
	chatCalls++
	current := chatCalls
	mu.Unlock()

	content := completionFor(prompt, current)
	log.Printf("chat #%d: %.60s", current, prompt)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": chatMessage{Role: "assistant", Content: content}},
		},
	})
}

// completionFor keys off the prompt wording the generation client uses.
func completionFor(prompt string, n int) string {
	switch {
	case strings.Contains(prompt, "titles"):
		return fmt.Sprintf("The Complete Guide %d\nEverything You Need To Know %d\nWhy It Matters %d", n, n, n)
	case strings.Contains(prompt, "keywords"):
		return "guide, tutorial, basics, tips, best practices"
	default:
		return fmt.Sprintf(
			"This is stub article body number %d. It exists so the pipeline has something to queue.\n\n"+
				"A second paragraph keeps the meta description logic honest.", n)
	}
}

func imageHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	mu.Lock()
	imageCalls++
	current := imageCalls
	throttle := throttleEvery > 0 && current%throttleEvery == 0
	if throttle {
		throttled++
	}
	mu.Unlock()

	if throttle {
		log.Printf("image search #%d: throttled", current)
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	log.Printf("image search #%d: q=%q key=%s", current, query, r.Header.Get("Ocp-Apim-Subscription-Key"))

	type apiImage struct {
		ContentURL     string `json:"contentUrl"`
		ThumbnailURL   string `json:"thumbnailUrl"`
		Name           string `json:"name"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		EncodingFormat string `json:"encodingFormat"`
		HostPageURL    string `json:"hostPageUrl"`
		FamilyFriendly bool   `json:"isFamilyFriendly"`
	}

	images := make([]apiImage, 0, 3)
	for i := 0; i < 3; i++ {
		images = append(images, apiImage{
			ContentURL:     fmt.Sprintf("https://img.example.com/%d-%d.jpg", current, i),
			ThumbnailURL:   fmt.Sprintf("https://img.example.com/%d-%d-thumb.jpg", current, i),
			Name:           fmt.Sprintf("%s photo %d", query, i),
			Width:          1200,
			Height:         800,
			EncodingFormat: "jpeg",
			HostPageURL:    "https://example.com/page",
			FamilyFriendly: true,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"value": images})
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		ChatCalls:  chatCalls,
		ImageCalls: imageCalls,
		Throttled:  throttled,
		Since:      since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
