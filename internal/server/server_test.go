package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/config"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/detect"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/metrics"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
)

// testServer builds a server running the pattern layer only, which needs
// no model files or remote analyzer.
func testServer(t *testing.T, authToken string) *Server {
	t.Helper()
	log := logger.New("test", "error")
	m := metrics.New()

	pattern := pii.NewPatternDetector(log)
	store, err := detect.NewResultStore("", 0, log)
	if err != nil {
		t.Fatal(err)
	}
	detector := detect.NewDetector(pattern, nil, nil, store, m, log)
	detector.SetMode(detect.ModePatternOnly)

	anon := pii.NewAnonymizer(pattern)
	anon.SetLinker(pii.NewEntityLinker())

	cfg := &config.Config{
		BindAddress:         "127.0.0.1",
		Port:                0,
		AuthToken:           authToken,
		Language:            "en",
		ConfidenceThreshold: 0.7,
	}
	return New(cfg, detector, anon, m, log)
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleDetect(t *testing.T) {
	h := testServer(t, "").Handler()

	w := postJSON(t, h, "/detect", `{"text":"Mail bob@example.com today"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Entities []pii.Entity `json:"entities"`
		Count    int          `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Entities) != 1 {
		t.Fatalf("count = %d, entities = %v", resp.Count, resp.Entities)
	}
	if resp.Entities[0].Type != pii.Email || resp.Entities[0].Text != "bob@example.com" {
		t.Errorf("entity = %+v", resp.Entities[0])
	}
}

func TestHandleDetect_BadRequest(t *testing.T) {
	h := testServer(t, "").Handler()

	if w := postJSON(t, h, "/detect", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d, want 400", w.Code)
	}
	if w := postJSON(t, h, "/detect", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/detect", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", w.Code)
	}
}

func TestHandleAnonymize(t *testing.T) {
	h := testServer(t, "").Handler()

	w := postJSON(t, h, "/anonymize", `{"text":"Contact alice@example.com now."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var result pii.AnonymizationResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.AnonymizedText != "Contact [EMAIL-1] now." {
		t.Errorf("AnonymizedText = %q", result.AnonymizedText)
	}
	if len(result.Replacements) != 1 {
		t.Errorf("replacements = %v", result.Replacements)
	}
}

func TestHandleAnonymize_CustomSettings(t *testing.T) {
	h := testServer(t, "").Handler()

	// MONEY is outside the default type set; the per-request settings
	// opt in to it.
	body := `{"text":"She paid $1,250.00 today.","settings":{` +
		`"entityTypes":["MONEY"],"confidenceThreshold":0.7,"consistentReplacement":true}}`
	w := postJSON(t, h, "/anonymize", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var result pii.AnonymizationResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.AnonymizedText, "[AMOUNT-1]") {
		t.Errorf("AnonymizedText = %q, want [AMOUNT-1]", result.AnonymizedText)
	}
}

func TestHandleAnonymizeBatch_SharedNumbering(t *testing.T) {
	h := testServer(t, "").Handler()

	body := `{"texts":["Mail a@example.com now.","Mail a@example.com again.","Mail b@example.com instead."]}`
	w := postJSON(t, h, "/anonymize/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Results []pii.AnonymizationResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(resp.Results))
	}
	if !strings.Contains(resp.Results[0].AnonymizedText, "[EMAIL-1]") {
		t.Errorf("doc 0 = %q", resp.Results[0].AnonymizedText)
	}
	// Same address keeps its placeholder; a new one advances the counter.
	if !strings.Contains(resp.Results[1].AnonymizedText, "[EMAIL-1]") {
		t.Errorf("doc 1 = %q, want the same [EMAIL-1]", resp.Results[1].AnonymizedText)
	}
	if !strings.Contains(resp.Results[2].AnonymizedText, "[EMAIL-2]") {
		t.Errorf("doc 2 = %q, want [EMAIL-2]", resp.Results[2].AnonymizedText)
	}
}

func TestHandleClearReplacements(t *testing.T) {
	h := testServer(t, "").Handler()

	postJSON(t, h, "/anonymize", `{"text":"Mail a@example.com now."}`)
	if w := postJSON(t, h, "/replacements/clear", ""); w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}

	// Numbering restarts after the reset.
	w := postJSON(t, h, "/anonymize", `{"text":"Mail b@example.com now."}`)
	var result pii.AnonymizationResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.AnonymizedText, "[EMAIL-1]") {
		t.Errorf("post-clear = %q, want numbering restarted", result.AnonymizedText)
	}
}

func TestHandleStatus(t *testing.T) {
	h := testServer(t, "").Handler()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Status          string             `json:"status"`
		Mode            string             `json:"mode"`
		RecommendedMode string             `json:"recommendedMode"`
		Language        string             `json:"language"`
		Layers          detect.LayerStatus `json:"layers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "running" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Mode != "pattern_only" {
		t.Errorf("mode = %q", resp.Mode)
	}
	if resp.RecommendedMode != "pattern_only" {
		t.Errorf("recommendedMode = %q (no model or remote wired)", resp.RecommendedMode)
	}
	if !resp.Layers.Pattern || resp.Layers.Ner || resp.Layers.Remote {
		t.Errorf("layers = %+v", resp.Layers)
	}
}

func TestHandleMode(t *testing.T) {
	h := testServer(t, "").Handler()

	if w := postJSON(t, h, "/mode", `{"mode":"hybrid"}`); w.Code != http.StatusOK {
		t.Errorf("valid mode: status = %d", w.Code)
	}
	if w := postJSON(t, h, "/mode", `{"mode":"turbo"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid mode: status = %d, want 400", w.Code)
	}
	if w := postJSON(t, h, "/mode", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing mode: status = %d, want 400", w.Code)
	}
}

func TestHandleLanguage(t *testing.T) {
	h := testServer(t, "").Handler()

	if w := postJSON(t, h, "/language", `{"language":"NL"}`); w.Code != http.StatusOK {
		t.Errorf("valid language: status = %d", w.Code)
	}
	if w := postJSON(t, h, "/language", `{"language":"dutch"}`); w.Code != http.StatusBadRequest {
		t.Errorf("non-two-letter language: status = %d, want 400", w.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	h := testServer(t, "").Handler()

	postJSON(t, h, "/detect", `{"text":"Mail bob@example.com today"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var snap metrics.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Requests.Detect != 1 {
		t.Errorf("detect total = %d, want 1", snap.Requests.Detect)
	}
	if snap.Layers.PatternEntities != 1 {
		t.Errorf("pattern entities = %d, want 1", snap.Layers.PatternEntities)
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := testServer(t, "sekrit").Handler()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}
