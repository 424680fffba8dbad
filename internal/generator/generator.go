// Package generator runs one bid-document generation: it loads the tender
// files of an analysis, extracts their text, looks for a template of the
// requested document, composes the prompt and asks the model for the result.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tenderprep/internal/document"
	"tenderprep/internal/extractor"
	"tenderprep/internal/llm"
	"tenderprep/internal/prompt"
	"tenderprep/internal/storage"
	"tenderprep/internal/store"
	"tenderprep/internal/template"
)

// ErrInvalidInput is returned when a required request field is missing.
var ErrInvalidInput = errors.New("invalid input")

// DocumentGenerator produces a document from a composed prompt.
type DocumentGenerator interface {
	GenerateDocument(ctx context.Context, p prompt.Prompt, documentName string) (*document.Document, error)
}

// Records is the part of the analysis store the generator needs.
type Records interface {
	GetAnalysis(ctx context.Context, id string) (*store.Analysis, error)
	ListFiles(ctx context.Context, analysisID string) ([]*store.File, error)
	SaveGeneratedDocument(ctx context.Context, d *store.GeneratedDocument) error
}

// Request is one generation call.
type Request struct {
	AnalysisID    string              `json:"analysisId"`
	DocumentName  string              `json:"documentName"`
	Company       *prompt.Participant `json:"companyData,omitempty"`
	TenderContext string              `json:"tenderContext,omitempty"`
	BidAmount     *prompt.BidAmount   `json:"bidAmountData,omitempty"`
}

// Result is a generated document and how it was produced.
type Result struct {
	Document     *document.Document `json:"document"`
	HasTemplate  bool               `json:"hasTemplate"`
	MatchedFiles []string           `json:"matchedFiles"`
	Mode         prompt.Mode        `json:"mode"`
}

// Service wires the pipeline together. Records may be nil for callers that
// pass files directly; LLM nil means no credential was configured.
type Service struct {
	Records    Records
	Files      storage.Downloader
	Extractor  *extractor.Extractor
	LLM        DocumentGenerator
	Thresholds template.Thresholds
	Now        func() time.Time
}

// Generate produces the document named in req from the files uploaded to
// the analysis and stores the result.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.AnalysisID) == "" || strings.TrimSpace(req.DocumentName) == "" {
		return nil, fmt.Errorf("%w: analysisId and documentName are required", ErrInvalidInput)
	}
	if s.LLM == nil {
		return nil, llm.ErrMissingCredential
	}
	if s.Records == nil || s.Files == nil {
		return nil, errors.New("generator: analysis store not configured")
	}

	analysis, err := s.Records.GetAnalysis(ctx, req.AnalysisID)
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	files, err := s.Records.ListFiles(ctx, req.AnalysisID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	raw := make([]extractor.RawFile, 0, len(files))
	for _, f := range files {
		data, err := s.Files.Download(ctx, f.Path)
		if err != nil {
			log.Printf("Skipping %s: download failed: %v", f.Name, err)
			continue
		}
		raw = append(raw, extractor.RawFile{Name: f.Name, Data: data, Kind: extractor.DetectKind(f.Name, data)})
	}

	tender := &prompt.TenderInfo{Title: analysis.Title, ProcurementType: analysis.ProcurementType}
	res, err := s.run(ctx, req, raw, tender)
	if err != nil {
		return nil, err
	}

	saved := &store.GeneratedDocument{
		AnalysisID:   req.AnalysisID,
		DocumentName: req.DocumentName,
		Content:      res.Document,
		HasTemplate:  res.HasTemplate,
		Mode:         string(res.Mode),
		MatchedFiles: res.MatchedFiles,
	}
	if err := s.Records.SaveGeneratedDocument(ctx, saved); err != nil {
		log.Printf("Failed to save generated document %q: %v", req.DocumentName, err)
	}
	return res, nil
}

// GenerateFromFiles produces the document from files supplied by the
// caller. Nothing is persisted; AnalysisID is not required.
func (s *Service) GenerateFromFiles(ctx context.Context, req Request, files []extractor.RawFile) (*Result, error) {
	if strings.TrimSpace(req.DocumentName) == "" {
		return nil, fmt.Errorf("%w: documentName is required", ErrInvalidInput)
	}
	if s.LLM == nil {
		return nil, llm.ErrMissingCredential
	}
	for i := range files {
		if files[i].Kind == extractor.Other {
			files[i].Kind = extractor.DetectKind(files[i].Name, files[i].Data)
		}
	}
	return s.run(ctx, req, files, nil)
}

func (s *Service) run(ctx context.Context, req Request, files []extractor.RawFile, tender *prompt.TenderInfo) (*Result, error) {
	start := time.Now()
	texts := s.Extractor.ExtractAll(ctx, files)
	for _, t := range texts {
		switch {
		case t.Skipped:
			log.Printf("File %s skipped: extraction budget exhausted", t.Source)
		case t.Text == "":
			log.Printf("File %s yielded no text", t.Source)
		}
	}

	th := s.Thresholds
	if th == (template.Thresholds{}) {
		th = template.DefaultThresholds()
	}
	decision := template.Locate(req.DocumentName, texts, th)
	if decision.Found {
		log.Printf("Template for %q found in %s", req.DocumentName, strings.Join(decision.MatchedFiles, ", "))
	} else {
		log.Printf("No template for %q among %d files, generating freely", req.DocumentName, len(files))
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	p := prompt.Compose(prompt.Input{
		DocumentName:  req.DocumentName,
		Template:      decision,
		Participant:   req.Company,
		Amount:        req.BidAmount,
		Tender:        tender,
		TenderContext: req.TenderContext,
		Date:          now(),
	})

	doc, err := s.LLM.GenerateDocument(ctx, p, req.DocumentName)
	if err != nil {
		return nil, err
	}
	log.Printf("Document %q ready in %v", req.DocumentName, time.Since(start).Round(time.Millisecond))

	matched := decision.MatchedFiles
	if matched == nil {
		matched = []string{}
	}
	return &Result{
		Document:     doc,
		HasTemplate:  decision.Found,
		MatchedFiles: matched,
		Mode:         p.Mode,
	}, nil
}
