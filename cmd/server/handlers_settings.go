package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// ========== Settings Endpoint ==========

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		resp := map[string]interface{}{
			"api_key":      maskKey(s.llmCfg.APIKey),
			"base_url":     s.llmCfg.BaseURL,
			"model":        s.llmCfg.Model,
			"vision_model": s.llmCfg.VisionModel,
			"configured":   s.client != nil,
		}
		s.mu.RUnlock()
		jsonResp(w, resp)

	case http.MethodPost:
		var req SavedSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, "Invalid request", http.StatusBadRequest)
			return
		}

		s.mu.RLock()
		cfg := s.llmCfg
		s.mu.RUnlock()

		// A masked key echoed back by the UI keeps the current one.
		if strings.Contains(req.APIKey, "...") || req.APIKey == "****" {
			req.APIKey = ""
		}
		req.apply(&cfg)
		s.configureLLM(cfg)

		saved := SavedSettings{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			VisionModel: cfg.VisionModel,
		}
		if err := persistSettings(s.settings, s.sealer, saved); err != nil {
			log.Printf("Failed to persist settings: %v", err)
		}

		log.Printf("Settings updated: model=%s base_url=%s", cfg.Model, cfg.BaseURL)
		jsonResp(w, map[string]string{"status": "saved"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
