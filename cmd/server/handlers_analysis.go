package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"tenderprep/internal/document"
	"tenderprep/internal/extractor"
	"tenderprep/internal/store"
)

// ========== Analysis Endpoints ==========

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListAnalyses(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		jsonResp(w, list)

	case http.MethodPost:
		var req struct {
			Title           string `json:"title"`
			ProcurementType string `json:"procurement_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, "Invalid request", http.StatusBadRequest)
			return
		}
		a, err := s.store.CreateAnalysis(r.Context(), req.Title, req.ProcurementType)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Printf("Created analysis %s (%s)", a.ID, a.Title)
		jsonResp(w, a)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		jsonErr(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteAnalysis(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.files.RemovePrefix(req.ID); err != nil {
		log.Printf("Failed to remove uploads of analysis %s: %v", req.ID, err)
	}
	jsonResp(w, map[string]string{"status": "deleted"})
}

// ========== File Upload ==========

var allowedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".docm": true, ".dotx": true,
	".txt": true, ".csv": true, ".md": true, ".xml": true, ".html": true,
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart (max 100MB)
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		jsonErr(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	analysisID := r.FormValue("analysis_id")
	if analysisID == "" {
		jsonErr(w, "analysis_id is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetAnalysis(ctx, analysisID); err != nil {
		writeError(w, err)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		jsonErr(w, "No files uploaded", http.StatusBadRequest)
		return
	}

	saved := []*store.File{}
	var skipped []string
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedExtensions[ext] {
			skipped = append(skipped, fh.Filename)
			continue
		}
		src, err := fh.Open()
		if err != nil {
			skipped = append(skipped, fh.Filename)
			continue
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			skipped = append(skipped, fh.Filename)
			continue
		}

		path, size, err := s.files.Upload(ctx, analysisID, fh.Filename, bytes.NewReader(data))
		if err != nil {
			log.Printf("Upload of %s failed: %v", fh.Filename, err)
			skipped = append(skipped, fh.Filename)
			continue
		}
		f := &store.File{
			AnalysisID: analysisID,
			Name:       filepath.Base(fh.Filename),
			Path:       path,
			Size:       size,
			Kind:       extractor.DetectKind(fh.Filename, data).String(),
		}
		if err := s.store.AddFile(ctx, f); err != nil {
			writeError(w, err)
			return
		}
		saved = append(saved, f)
	}

	jsonResp(w, map[string]interface{}{
		"uploaded": saved,
		"skipped":  skipped,
		"count":    len(saved),
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	analysisID := r.URL.Query().Get("analysis_id")
	if analysisID == "" {
		jsonErr(w, "analysis_id is required", http.StatusBadRequest)
		return
	}
	files, err := s.store.ListFiles(r.Context(), analysisID)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResp(w, files)
}

// ========== Generated Documents ==========

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	analysisID := r.URL.Query().Get("analysis_id")
	if analysisID == "" {
		jsonErr(w, "analysis_id is required", http.StatusBadRequest)
		return
	}
	docs, err := s.store.ListGeneratedDocuments(r.Context(), analysisID)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResp(w, docs)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AnalysisID   string `json:"analysis_id"`
		DocumentName string `json:"document_name"`
		Format       string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AnalysisID == "" || req.DocumentName == "" {
		jsonErr(w, "analysis_id and document_name are required", http.StatusBadRequest)
		return
	}
	gd, err := s.store.GetGeneratedDocument(r.Context(), req.AnalysisID, req.DocumentName)
	if err != nil {
		writeError(w, err)
		return
	}

	var (
		body        []byte
		contentType string
		ext         string
	)
	switch strings.ToLower(req.Format) {
	case "", "docx":
		var buf bytes.Buffer
		if err := document.WriteDOCX(&buf, gd.Content); err != nil {
			writeError(w, err)
			return
		}
		body, contentType, ext = buf.Bytes(), extractor.MimeDOCX, ".docx"
	case "txt":
		body, contentType, ext = []byte(gd.Content.PlainText()), "text/plain; charset=utf-8", ".txt"
	default:
		jsonErr(w, "format must be docx or txt", http.StatusBadRequest)
		return
	}

	name := document.FileName(gd.Content.Title, ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Write(body)
}
