package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"tenderprep/internal/generator"
	"tenderprep/internal/money"
	"tenderprep/internal/prompt"
	"tenderprep/internal/store"
)

// ========== Generation Endpoint ==========

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.Company == nil {
		if p, err := s.store.Participant(ctx); err == nil {
			req.Company = p
		}
	}
	if req.BidAmount == nil && req.AnalysisID != "" {
		if b, err := s.store.BidAmount(ctx, req.AnalysisID); err == nil {
			req.BidAmount = b
		}
	}

	start := time.Now()
	res, err := s.generator().Generate(ctx, req)
	if err != nil {
		log.Printf("Generation of %q failed after %v: %v", req.DocumentName, time.Since(start).Round(time.Millisecond), err)
		writeError(w, err)
		return
	}
	jsonResp(w, res)
}

// ========== Bid Amount ==========

type bidAmountRequest struct {
	AnalysisID string  `json:"analysis_id"`
	Amount     float64 `json:"amount"`
	VATRate    string  `json:"vat_rate"`
}

type bidAmountResponse struct {
	prompt.BidAmount
	AmountFormatted    string `json:"amount_formatted"`
	VATAmountFormatted string `json:"vat_amount_formatted"`
	VATLabel           string `json:"vat_label"`
}

func newBidAmountResponse(b prompt.BidAmount) bidAmountResponse {
	return bidAmountResponse{
		BidAmount:          b,
		AmountFormatted:    money.Format(money.FromRubles(b.TotalWithVAT)),
		VATAmountFormatted: money.Format(money.FromRubles(b.VATAmount)),
		VATLabel:           money.VATRate(b.VATRate).Label(),
	}
}

func (s *Server) handleBidAmount(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		analysisID := r.URL.Query().Get("analysis_id")
		if analysisID == "" {
			jsonErr(w, "analysis_id is required", http.StatusBadRequest)
			return
		}
		b, err := s.store.BidAmount(r.Context(), analysisID)
		if err != nil {
			writeError(w, err)
			return
		}
		jsonResp(w, newBidAmountResponse(*b))

	case http.MethodPost:
		var req bidAmountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if req.Amount <= 0 {
			jsonErr(w, "amount must be positive", http.StatusBadRequest)
			return
		}
		if req.VATRate == "" {
			req.VATRate = string(money.DefaultRate)
		}
		if !money.VATRate(req.VATRate).Valid() {
			jsonErr(w, "unknown vat_rate", http.StatusBadRequest)
			return
		}

		b := prompt.BidAmount{Amount: req.Amount, VATRate: req.VATRate}
		b.Complete()

		if req.AnalysisID != "" {
			if err := s.store.SaveBidAmount(r.Context(), req.AnalysisID, &b); err != nil {
				writeError(w, err)
				return
			}
		}
		jsonResp(w, newBidAmountResponse(b))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ========== Company Card ==========

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, err := s.store.Participant(r.Context())
		if errors.Is(err, store.ErrNotFound) {
			jsonResp(w, prompt.Participant{})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		jsonResp(w, p)

	case http.MethodPost:
		var p prompt.Participant
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			jsonErr(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if err := s.store.SaveParticipant(r.Context(), &p); err != nil {
			writeError(w, err)
			return
		}
		log.Printf("Company card saved: %s", p.FullName)
		jsonResp(w, map[string]string{"status": "saved"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
