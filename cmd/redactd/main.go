// Command redactd is the PII detection and anonymization service.
//
// It layers three detectors — compiled regex patterns, a local ONNX
// token-classification model, and an optional remote Presidio analyzer —
// and fuses their findings into consistent placeholder rewrites.
//
// The service starts degraded when model files are missing: the pattern
// layer always works, and modes that need missing layers fall back
// automatically.
//
// Usage:
//
//	# Pattern layer only
//	./redactd
//
//	# With the local model
//	NER_MODEL_PATH=models/ner/model.onnx NER_VOCAB_PATH=models/ner/vocab.txt ./redactd
//
//	# With a remote analyzer
//	PRESIDIO_ENABLED=true PRESIDIO_URL=http://127.0.0.1:5002 ./redactd
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/config"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/detect"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/metrics"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/ner"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/presidio"
	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/server"
)

func main() {
	cfg := config.Load()
	log := logger.New("redactd", cfg.LogLevel)

	printBanner(cfg)

	m := metrics.New()

	pattern := pii.NewPatternDetector(logger.New("pattern", cfg.LogLevel))

	pipeline := buildPipeline(cfg, logger.New("ner", cfg.LogLevel))

	var remote *presidio.Client
	if cfg.PresidioEnabled {
		remote = presidio.NewClient(cfg.PresidioURL,
			time.Duration(cfg.PresidioTimeoutSecs)*time.Second,
			logger.New("presidio", cfg.LogLevel))
	}

	store, err := detect.NewResultStore(cfg.CachePath, cfg.CacheCapacity, logger.New("cache", cfg.LogLevel))
	if err != nil {
		log.Fatalf("startup", "open result store: %v", err)
	}

	detector := detect.NewDetector(pattern, pipeline, remote, store, m, logger.New("detect", cfg.LogLevel))
	if mode, err := detect.ParseMode(cfg.Mode); err == nil {
		detector.SetMode(mode)
	} else {
		log.Warnf("startup", "%v, using %s", err, detector.Mode())
	}
	detector.SetLanguage(cfg.Language)

	anon := pii.NewAnonymizer(pattern)
	anon.SetLinker(pii.NewEntityLinker())

	api := server.New(cfg, detector, anon, m, logger.New("server", cfg.LogLevel))
	if err := api.ListenAndServe(); err != nil {
		log.Fatalf("startup", "API server: %v", err)
	}
}

// buildPipeline loads the tokenizer and model. Missing or broken model
// files leave the model layer disabled rather than aborting startup.
func buildPipeline(cfg *config.Config, log *logger.Logger) *ner.Pipeline {
	tokenizer, err := ner.NewTokenizer(cfg.VocabPath, cfg.MaxSeqLen)
	if err != nil {
		log.Warnf("startup", "vocab unavailable, model layer disabled: %v", err)
		return nil
	}
	classifier, err := ner.NewONNXClassifier(ner.ONNXConfig{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.OnnxLibraryPath,
		MaxSeqLen:   cfg.MaxSeqLen,
	}, log)
	if err != nil {
		log.Warnf("startup", "model unavailable, model layer disabled: %v", err)
		return nil
	}
	return ner.NewPipeline(tokenizer, classifier, cfg.MaxConcurrent, log)
}

func printBanner(cfg *config.Config) {
	remote := "(disabled)"
	if cfg.PresidioEnabled {
		remote = cfg.PresidioURL
	}
	cache := cfg.CachePath
	if cache == "" {
		cache = "(memory)"
	}
	authState := "disabled"
	if cfg.AuthToken != "" || os.Getenv("AUTH_TOKEN") != "" {
		authState = "bearer token"
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          redactd — PII redaction service             ║
╚══════════════════════════════════════════════════════╝
  API port        : %d
  Detection mode  : %s
  Language        : %s
  Model           : %s
  Remote analyzer : %s
  Result cache    : %s
  Auth            : %s

  Check status:
    curl http://localhost:%d/status
`, cfg.Port, cfg.Mode, cfg.Language,
		cfg.ModelPath, remote, cache, authState,
		cfg.Port)
}
