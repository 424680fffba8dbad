package main

import (
	"encoding/json"
	"log"
	"net/http"

	"tenderprep/internal/extractor"
	"tenderprep/internal/search"
)

// ========== Search Endpoint ==========

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AnalysisID string `json:"analysis_id"`
		Query      string `json:"query"`
		TopK       int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AnalysisID == "" || req.Query == "" {
		jsonErr(w, "analysis_id and query are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	files, err := s.store.ListFiles(ctx, req.AnalysisID)
	if err != nil {
		writeError(w, err)
		return
	}
	raw := make([]extractor.RawFile, 0, len(files))
	for _, f := range files {
		data, err := s.files.Download(ctx, f.Path)
		if err != nil {
			log.Printf("Skipping %s: download failed: %v", f.Name, err)
			continue
		}
		raw = append(raw, extractor.RawFile{Name: f.Name, Data: data, Kind: extractor.DetectKind(f.Name, data)})
	}

	texts := s.currentExtractor().ExtractAll(ctx, raw)
	idx, err := search.Build(texts)
	if err != nil {
		writeError(w, err)
		return
	}
	defer idx.Close()

	hits, err := idx.Search(req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResp(w, map[string]interface{}{
		"query": req.Query,
		"hits":  hits,
	})
}
