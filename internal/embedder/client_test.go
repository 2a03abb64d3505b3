package embedder_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/momenta/swipe-engine/internal/embedder"
)

func TestClientEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := embedder.NewClient(embedder.ClientConfig{
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
	})

	vector, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vector) != 3 || vector[0] != 0.1 {
		t.Errorf("vector = %v, want [0.1 0.2 0.3]", vector)
	}
}

func TestClientEmbedRejectsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	client := embedder.NewClient(embedder.ClientConfig{
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
	})

	if _, err := client.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty embedding response")
	}
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := embedder.NewClient(embedder.ClientConfig{
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
		Timeout:           time.Second,
		Breaker: embedder.BreakerConfig{
			MaxFailures: 2,
			Timeout:     time.Minute,
		},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Embed(ctx, "x"); err == nil {
			t.Fatalf("request %d should fail", i)
		}
	}

	// The circuit is now open: requests fail fast without hitting the server.
	_, err := client.Embed(ctx, "x")
	if !errors.Is(err, embedder.ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
}
