// Package server provides the HTTP API for detection, anonymization and
// runtime inspection of the running service.
//
// Endpoints:
//
//	POST /detect              - detect entities {"text":"..."}
//	POST /anonymize           - detect and rewrite {"text":"...,"settings":{...}}
//	POST /anonymize/batch     - rewrite several documents under one numbering
//	POST /replacements/clear  - reset the replacement map and counters
//	GET  /status              - layer availability, current mode, uptime
//	POST /mode                - switch detection mode {"mode":"hybrid"}
//	POST /language            - switch analysis language {"language":"nl"}
//	GET  /metrics             - runtime counters
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/config"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/detect"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/metrics"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
)

// maxBodyBytes bounds request bodies. Batch documents can be large but a
// request is still a handful of documents, not a corpus.
const maxBodyBytes = 8 << 20

// Server is the service API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	detector  *detect.Detector
	anon      *pii.Anonymizer
	settings  pii.AnonymizationSettings
	token     string // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// New creates an API server.
func New(cfg *config.Config, detector *detect.Detector, anon *pii.Anonymizer, m *metrics.Metrics, log *logger.Logger) *Server {
	settings := pii.DefaultSettings()
	settings.ConfidenceThreshold = cfg.ConfidenceThreshold
	settings.Language = cfg.Language

	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		detector:  detector,
		anon:      anon,
		settings:  settings,
		token:     cfg.AuthToken,
		metrics:   m,
		log:       log,
	}
	if s.token != "" {
		log.Info("auth", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/detect", s.handleDetect)
	mux.HandleFunc("/anonymize", s.handleAnonymize)
	mux.HandleFunc("/anonymize/batch", s.handleAnonymizeBatch)
	mux.HandleFunc("/replacements/clear", s.handleClearReplacements)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/mode", s.handleMode)
	mux.HandleFunc("/language", s.handleLanguage)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("auth", "unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "invalid request: need {\"text\":\"...\"}", http.StatusBadRequest)
		return
	}

	entities, err := s.detector.Detect(r.Context(), req.Text)
	if err != nil {
		s.log.Errorf("detect", "detection failed: %v", err)
		http.Error(w, "detection failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Entities []pii.Entity `json:"entities"`
		Count    int          `json:"count"`
	}{Entities: entities, Count: len(entities)})
}

// anonymizeRequest is shared by /anonymize and /anonymize/batch. Settings
// are optional; absent fields fall back to the server defaults.
type anonymizeRequest struct {
	Text     string                     `json:"text,omitempty"`
	Texts    []string                   `json:"texts,omitempty"`
	Settings *pii.AnonymizationSettings `json:"settings,omitempty"`
}

func (s *Server) requestSettings(req anonymizeRequest) pii.AnonymizationSettings {
	if req.Settings != nil {
		return *req.Settings
	}
	return s.settings
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req anonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "invalid request: need {\"text\":\"...\"}", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.anonymizeOne(r.Context(), req.Text, s.requestSettings(req))
	if err != nil {
		s.log.Errorf("anonymize", "detection failed: %v", err)
		http.Error(w, "detection failed", http.StatusInternalServerError)
		return
	}
	s.metrics.AnonymizeTotal.Add(1)
	s.metrics.RecordAnonLatency(time.Since(start))

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnonymizeBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req anonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Texts) == 0 {
		http.Error(w, "invalid request: need {\"texts\":[\"...\"]}", http.StatusBadRequest)
		return
	}

	settings := s.requestSettings(req)
	start := time.Now()

	// Detect everything first, then replace under one anonymizer lock so
	// a concurrent batch cannot interleave its numbering with ours.
	perDoc := make([][]pii.Entity, 0, len(req.Texts))
	for _, text := range req.Texts {
		entities, err := s.detector.Detect(r.Context(), text)
		if err != nil {
			s.log.Errorf("anonymize_batch", "detection failed: %v", err)
			http.Error(w, "detection failed", http.StatusInternalServerError)
			return
		}
		perDoc = append(perDoc, entities)
	}
	results := s.anon.AnonymizeEntitiesBatch(req.Texts, perDoc, settings)
	for _, result := range results {
		for _, e := range result.Entities {
			s.metrics.RecordReplacement(e.Type)
		}
	}
	s.metrics.BatchTotal.Add(1)
	s.metrics.RecordAnonLatency(time.Since(start))

	writeJSON(w, http.StatusOK, struct {
		Results []pii.AnonymizationResult `json:"results"`
	}{Results: results})
}

// anonymizeOne runs fused detection and the replacement pass for one
// document, recording per-type replacement counts.
func (s *Server) anonymizeOne(ctx context.Context, text string, settings pii.AnonymizationSettings) (pii.AnonymizationResult, error) {
	entities, err := s.detector.Detect(ctx, text)
	if err != nil {
		return pii.AnonymizationResult{}, err
	}
	result := s.anon.AnonymizeEntities(text, entities, settings)
	for _, e := range result.Entities {
		s.metrics.RecordReplacement(e.Type)
	}
	return result, nil
}

func (s *Server) handleClearReplacements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	s.anon.ClearReplacements()
	s.log.Info("clear_replacements", "replacement map and counters reset")
	writeJSON(w, http.StatusOK, map[string]string{"cleared": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	layers := s.detector.Status(ctx)

	stats := make(map[string]int)
	for t, n := range s.anon.Statistics() {
		stats[string(t)] = n
	}

	writeJSON(w, http.StatusOK, struct {
		Status          string             `json:"status"`
		Uptime          string             `json:"uptime"`
		Mode            detect.Mode        `json:"mode"`
		RecommendedMode detect.Mode        `json:"recommendedMode"`
		Language        string             `json:"language"`
		Layers          detect.LayerStatus `json:"layers"`
		Replacements    map[string]int     `json:"replacements,omitempty"`
	}{
		Status:          "running",
		Uptime:          time.Since(s.startTime).Round(time.Second).String(),
		Mode:            s.detector.Mode(),
		RecommendedMode: layers.RecommendedMode(),
		Language:        s.detector.Language(),
		Layers:          layers,
		Replacements:    stats,
	})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mode == "" {
		http.Error(w, "invalid request: need {\"mode\":\"...\"}", http.StatusBadRequest)
		return
	}
	mode, err := detect.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.detector.SetMode(mode)
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" {
		http.Error(w, "invalid request: need {\"language\":\"...\"}", http.StatusBadRequest)
		return
	}
	if len(req.Language) != 2 {
		http.Error(w, "language must be a two-letter code", http.StatusBadRequest)
		return
	}
	s.detector.SetLanguage(strings.ToLower(req.Language))
	writeJSON(w, http.StatusOK, map[string]string{"language": strings.ToLower(req.Language)})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode errors mean the client went away mid-write; nothing to recover.
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// ListenAndServe starts the API HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	s.log.Infof("listen", "API listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
