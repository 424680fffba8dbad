package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tenderprep/internal/crypto"
	"tenderprep/internal/extractor"
	"tenderprep/internal/llm"
	"tenderprep/internal/template"
)

// Config is the server configuration, read from the environment (and .env).
type Config struct {
	Port           string
	DataDir        string
	SettingsSecret string
	LLM            llm.Config
	Extract        extractor.Options
	Thresholds     template.Thresholds
}

func loadConfig() Config {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	th := template.DefaultThresholds()
	th.FileOverlap = envFloat("TEMPLATE_FILE_OVERLAP", th.FileOverlap)
	th.LooseOverlap = envFloat("TEMPLATE_LOOSE_OVERLAP", th.LooseOverlap)
	th.MinLength = envInt("TEMPLATE_MIN_LENGTH", th.MinLength)

	return Config{
		Port:           envString("PORT", "8080"),
		DataDir:        envString("DATA_DIR", "data"),
		SettingsSecret: os.Getenv("SETTINGS_SECRET"),
		LLM: llm.Config{
			APIKey:            apiKey,
			BaseURL:           os.Getenv("LLM_BASE_URL"),
			Model:             os.Getenv("LLM_MODEL"),
			VisionModel:       os.Getenv("LLM_VISION_MODEL"),
			Timeout:           envSeconds("LLM_TIMEOUT_SECONDS", llm.DefaultTimeout),
			RequestsPerSecond: envFloat("LLM_RATE_LIMIT", 0),
			JSONMode:          true,
		},
		Extract: extractor.Options{
			InflateTimeout: envSeconds("INFLATE_TIMEOUT_SECONDS", 0),
			PDFTextLayer:   envBool("PDF_TEXT_LAYER"),
			Workers:        envInt("EXTRACT_WORKERS", 0),
			Budget:         envSeconds("EXTRACT_BUDGET_SECONDS", 0),
		},
		Thresholds: th,
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		return def
	}
	return f
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}

func envSeconds(key string, def time.Duration) time.Duration {
	n := envInt(key, 0)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// ========== Settings Persistence ==========

// SavedSettings are runtime overrides written by /api/settings.
type SavedSettings struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	Model       string `json:"model"`
	VisionModel string `json:"vision_model"`
}

func settingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}

func loadSavedSettings(path string, sealer *crypto.Sealer) *SavedSettings {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var s SavedSettings
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("Warning: could not parse %s: %v", path, err)
		return nil
	}
	if s.APIKey != "" {
		key, err := sealer.Open(s.APIKey)
		if err != nil {
			log.Printf("Warning: stored API key cannot be decrypted, ignoring it: %v", err)
			key = ""
		}
		s.APIKey = key
	}
	return &s
}

func persistSettings(path string, sealer *crypto.Sealer, s SavedSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	sealed, err := sealer.Seal(s.APIKey)
	if err != nil {
		return err
	}
	s.APIKey = sealed

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// apply overlays non-empty saved values on cfg.
func (s *SavedSettings) apply(cfg *llm.Config) {
	if s.APIKey != "" {
		cfg.APIKey = s.APIKey
	}
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if s.VisionModel != "" {
		cfg.VisionModel = s.VisionModel
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
