// Package config loads and holds all service configuration.
// Settings come from defaults, overridden by redactd-config.json, then
// environment variables. A .env file in the working directory is loaded
// into the environment first when present.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration.
type Config struct {
	BindAddress string `json:"bindAddress"`
	Port        int    `json:"port"`
	LogLevel    string `json:"logLevel"`
	// AuthToken protects mutating endpoints. Empty disables auth.
	AuthToken string `json:"authToken"`

	// Local model layer
	ModelPath       string `json:"modelPath"`
	VocabPath       string `json:"vocabPath"`
	OnnxLibraryPath string `json:"onnxLibraryPath"`
	MaxSeqLen       int    `json:"maxSeqLen"`
	MaxConcurrent   int    `json:"maxConcurrentInference"`

	// Remote analyzer layer
	PresidioEnabled     bool   `json:"presidioEnabled"`
	PresidioURL         string `json:"presidioUrl"`
	PresidioTimeoutSecs int    `json:"presidioTimeoutSecs"`

	// Detection defaults
	Mode                string  `json:"mode"`
	Language            string  `json:"language"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`

	// Result cache
	CachePath     string `json:"cachePath"`
	CacheCapacity int    `json:"cacheCapacity"`
}

// Load returns config with defaults overridden by redactd-config.json and
// env vars.
func Load() *Config {
	// Optional; missing .env is not an error.
	godotenv.Load() //nolint:errcheck

	cfg := defaults()
	loadFile(cfg, "redactd-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		BindAddress:         "127.0.0.1",
		Port:                8090,
		LogLevel:            "info",
		ModelPath:           "models/ner/model.onnx",
		VocabPath:           "models/ner/vocab.txt",
		MaxSeqLen:           512,
		MaxConcurrent:       2,
		PresidioEnabled:     false,
		PresidioURL:         "http://127.0.0.1:5002",
		PresidioTimeoutSecs: 30,
		Mode:                "hybrid",
		Language:            "en",
		ConfidenceThreshold: 0.7,
		CachePath:           "",
		CacheCapacity:       2048,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("NER_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("NER_VOCAB_PATH"); v != "" {
		cfg.VocabPath = v
	}
	if v := os.Getenv("ONNX_LIBRARY_PATH"); v != "" {
		cfg.OnnxLibraryPath = v
	}
	if v := os.Getenv("NER_MAX_SEQ_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSeqLen = n
		}
	}
	if v := os.Getenv("NER_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrent = n
		}
	}
	if v := os.Getenv("PRESIDIO_ENABLED"); v == "true" {
		cfg.PresidioEnabled = true
	} else if v == "false" {
		cfg.PresidioEnabled = false
	}
	if v := os.Getenv("PRESIDIO_URL"); v != "" {
		cfg.PresidioURL = v
	}
	if v := os.Getenv("PRESIDIO_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PresidioTimeoutSecs = n
		}
	}
	if v := os.Getenv("DETECTION_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("DETECTION_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheCapacity = n
		}
	}
}
