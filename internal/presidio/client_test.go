package presidio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, logger.New("test", "error"))
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Language != "en" {
			t.Errorf("language = %q, want en", req.Language)
		}
		json.NewEncoder(w).Encode([]RemoteEntity{ //nolint:errcheck
			{EntityType: "PERSON", Start: 0, End: 8, Score: 0.85},
		})
	}))
	defer srv.Close()

	entities, err := testClient(srv.URL).Analyze(context.Background(), "John Doe was here.", "en")
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(entities))
	}
	e := entities[0]
	if e.EntityType != "PERSON" || e.Start != 0 || e.End != 8 || e.Score != 0.85 {
		t.Errorf("entity = %+v", e)
	}
}

func TestAnalyze_EmptyBodyMeansNoFindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	entities, err := testClient(srv.URL).Analyze(context.Background(), "nothing here", "en")
	if err != nil {
		t.Fatalf("empty body should not be an error: %v", err)
	}
	if entities != nil {
		t.Errorf("entities = %v, want nil", entities)
	}
}

func TestAnalyze_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Analyze(context.Background(), "text", "en")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestAnalyze_ConnectionRefusedIsUnavailable(t *testing.T) {
	// A server that is already closed guarantees a refused connection.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testClient(url).Analyze(context.Background(), "text", "en")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := testClient(srv.URL).Ping(context.Background()); err != nil {
		t.Errorf("Ping = %v, want nil", err)
	}

	srv.Close()
	if err := testClient(srv.URL).Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ping after close = %v, want ErrUnavailable", err)
	}
}

func TestSupportedEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supportedentities" {
			t.Errorf("path = %q, want /supportedentities", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]string{"PERSON", "EMAIL_ADDRESS"}) //nolint:errcheck
	}))
	defer srv.Close()

	names, err := testClient(srv.URL).SupportedEntities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "PERSON" {
		t.Errorf("names = %v", names)
	}
}
