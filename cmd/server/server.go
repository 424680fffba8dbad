package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"

	"tenderprep/internal/crypto"
	"tenderprep/internal/extractor"
	"tenderprep/internal/generator"
	"tenderprep/internal/llm"
	"tenderprep/internal/storage"
	"tenderprep/internal/store"
)

// Server holds all shared state.
type Server struct {
	mu        sync.RWMutex
	llmCfg    llm.Config
	client    *llm.Client // nil while no API key is configured
	extractor *extractor.Extractor

	cfg      Config
	store    *store.Store
	files    *storage.Dir
	sealer   *crypto.Sealer
	settings string // path of settings.json
}

func newServer(cfg Config) (*Server, error) {
	sealer, err := crypto.NewSealer(cfg.SettingsSecret)
	if err != nil {
		return nil, fmt.Errorf("init settings sealer: %w", err)
	}
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	files, err := storage.NewDir(filepath.Join(cfg.DataDir, "uploads"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open upload storage: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		files:    files,
		sealer:   sealer,
		settings: settingsPath(cfg.DataDir),
	}

	llmCfg := cfg.LLM
	if saved := loadSavedSettings(s.settings, sealer); saved != nil {
		log.Printf("Loading saved settings from %s", s.settings)
		saved.apply(&llmCfg)
	}
	s.configureLLM(llmCfg)
	return s, nil
}

// configureLLM rebuilds the completion client and the extractor that uses it
// for vision. Must not be called with s.mu held.
func (s *Server) configureLLM(cfg llm.Config) {
	client, err := llm.NewClient(cfg)
	if err != nil {
		log.Printf("AI service not configured: %v (generation disabled until an API key is set)", err)
		client = nil
	}

	var vision extractor.Transcriber
	if client != nil {
		vision = client
		log.Printf("AI service ready: model=%s", client.Model())
	}
	ext := extractor.New(vision, s.cfg.Extract)

	s.mu.Lock()
	s.llmCfg = cfg
	s.client = client
	s.extractor = ext
	s.mu.Unlock()
}

// generator returns a pipeline bound to the current client.
func (s *Server) generator() *generator.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc := &generator.Service{
		Records:    s.store,
		Files:      s.files,
		Extractor:  s.extractor,
		Thresholds: s.cfg.Thresholds,
	}
	if s.client != nil {
		svc.LLM = s.client
	}
	return svc
}

func (s *Server) currentExtractor() *extractor.Extractor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extractor
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/generate", s.handleGenerate)
	mux.HandleFunc("/api/bid-amount", s.handleBidAmount)

	mux.HandleFunc("/api/analyses", s.handleAnalyses)
	mux.HandleFunc("/api/analyses/delete", s.handleDeleteAnalysis)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/files", s.handleFiles)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	mux.HandleFunc("/api/documents/export", s.handleExport)
	mux.HandleFunc("/api/company", s.handleCompany)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/settings", s.handleSettings)

	return corsMiddleware(mux)
}

func (s *Server) Close() error {
	return s.store.Close()
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ========== Helpers ==========

func jsonResp(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

const msgNoAPIKey = "API-ключ AI-сервиса не настроен"

// writeError maps pipeline errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var llmErr *llm.Error
	switch {
	case errors.As(err, &llmErr):
		jsonErr(w, llmErr.Message, llmErr.HTTPStatus())
	case errors.Is(err, generator.ErrInvalidInput):
		jsonErr(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		jsonErr(w, "Not found", http.StatusNotFound)
	case errors.Is(err, llm.ErrMissingCredential):
		jsonErr(w, msgNoAPIKey, http.StatusInternalServerError)
	default:
		jsonErr(w, err.Error(), http.StatusInternalServerError)
	}
}
