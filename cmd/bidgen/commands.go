package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tenderprep/internal/document"
	"tenderprep/internal/extractor"
	"tenderprep/internal/generator"
	"tenderprep/internal/llm"
	"tenderprep/internal/money"
	"tenderprep/internal/prompt"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bidgen",
		Short: "Prepare tender bid documents",
		Long: `bidgen reads tender files (DOCX, PDF, text), finds the form of a requested
document among them and asks the AI service to fill it with the company card.

The API key is read from LLM_API_KEY (or OPENAI_API_KEY).`,
		SilenceUsage: true,
	}
	cmd.AddCommand(extractCmd(), generateCmd(), amountCmd())
	return cmd
}

// llmConfig reads the completion-service settings from the environment.
func llmConfig() llm.Config {
	key := os.Getenv("LLM_API_KEY")
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	return llm.Config{
		APIKey:      key,
		BaseURL:     os.Getenv("LLM_BASE_URL"),
		Model:       os.Getenv("LLM_MODEL"),
		VisionModel: os.Getenv("LLM_VISION_MODEL"),
		JSONMode:    true,
	}
}

func readFiles(paths []string) ([]extractor.RawFile, error) {
	files := make([]extractor.RawFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		name := filepath.Base(p)
		files = append(files, extractor.RawFile{Name: name, Data: data, Kind: extractor.DetectKind(name, data)})
	}
	return files, nil
}

// newExtractor wires vision transcription when a key is configured.
func newExtractor(cfg llm.Config, pdfText bool, budget time.Duration) (*extractor.Extractor, *llm.Client) {
	client, err := llm.NewClient(cfg)
	opts := extractor.Options{PDFTextLayer: pdfText, Budget: budget}
	if err != nil {
		return extractor.New(nil, opts), nil
	}
	return extractor.New(client, opts), client
}

// ========== extract ==========

func extractCmd() *cobra.Command {
	var (
		pdfText bool
		budget  time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "extract FILE...",
		Short: "Print the text extracted from tender files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := readFiles(args)
			if err != nil {
				return err
			}
			ext, _ := newExtractor(llmConfig(), pdfText, budget)
			texts := ext.ExtractAll(cmd.Context(), files)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(texts)
			}
			for _, t := range texts {
				fmt.Fprintf(out, "=== %s ===\n", t.Source)
				switch {
				case t.Skipped:
					fmt.Fprintln(out, "(skipped: time budget exhausted)")
				case t.Text == "":
					fmt.Fprintln(out, "(no text)")
				default:
					fmt.Fprintln(out, t.Text)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pdfText, "pdf-text", false, "Try the PDF text layer before vision transcription")
	cmd.Flags().DurationVar(&budget, "budget", extractor.DefaultBudget, "Overall extraction time budget")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of plain text")
	return cmd
}

// ========== generate ==========

func loadProfile(path string) (*prompt.Participant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p prompt.Participant
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}

func generateCmd() *cobra.Command {
	var (
		name        string
		companyPath string
		contextPath string
		amount      float64
		vat         string
		outPath     string
		pdfText     bool
		budget      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate --name DOCUMENT [FILE...]",
		Short: "Generate one bid document",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := generator.Request{DocumentName: name}
			if companyPath != "" {
				p, err := loadProfile(companyPath)
				if err != nil {
					return err
				}
				req.Company = p
			}
			if contextPath != "" {
				data, err := os.ReadFile(contextPath)
				if err != nil {
					return fmt.Errorf("read tender context: %w", err)
				}
				req.TenderContext = string(data)
			}
			if amount > 0 {
				req.BidAmount = &prompt.BidAmount{Amount: amount, VATRate: vat}
			}

			files, err := readFiles(args)
			if err != nil {
				return err
			}

			ext, client := newExtractor(llmConfig(), pdfText, budget)
			svc := &generator.Service{Extractor: ext}
			if client != nil {
				svc.LLM = client
			}
			res, err := svc.GenerateFromFiles(cmd.Context(), req, files)
			if err != nil {
				return err
			}

			if res.HasTemplate {
				fmt.Fprintf(cmd.ErrOrStderr(), "Template found in %s\n", strings.Join(res.MatchedFiles, ", "))
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "No template found, generated from scratch")
			}
			return writeDocument(cmd.OutOrStdout(), outPath, res)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Name of the document to generate (required)")
	cmd.Flags().StringVar(&companyPath, "company", "", "Company card (YAML)")
	cmd.Flags().StringVar(&contextPath, "context", "", "File with tender context (customer, subject, terms)")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Bid amount in rubles, VAT included")
	cmd.Flags().StringVar(&vat, "vat", string(money.DefaultRate), "VAT rate: 22, 10, 7, 5, 0 or none")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (.docx, .json or .txt); stdout when empty")
	cmd.Flags().BoolVar(&pdfText, "pdf-text", false, "Try the PDF text layer before vision transcription")
	cmd.Flags().DurationVar(&budget, "budget", extractor.DefaultBudget, "Overall extraction time budget")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func writeDocument(stdout io.Writer, outPath string, res *generator.Result) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".docx":
		if err := document.WriteDOCX(&buf, res.Document); err != nil {
			return err
		}
	case ".json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	default:
		buf.WriteString(res.Document.PlainText())
	}

	if outPath == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	return os.WriteFile(outPath, buf.Bytes(), 0o644)
}

// ========== amount ==========

func amountCmd() *cobra.Command {
	var vat string
	cmd := &cobra.Command{
		Use:   "amount AMOUNT",
		Short: "Show the VAT split and the amount in words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rubles float64
			if _, err := fmt.Sscanf(strings.ReplaceAll(args[0], ",", "."), "%f", &rubles); err != nil || rubles <= 0 {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			rate := money.VATRate(vat)
			if !rate.Valid() {
				return fmt.Errorf("invalid VAT rate %q", vat)
			}

			b := money.Compute(money.FromRubles(rubles), rate)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Сумма: %s (%s)\n", money.Format(b.Amount), b.AmountWords)
			if b.VAT > 0 {
				fmt.Fprintf(out, "В том числе НДС %s: %s (%s)\n", rate.Label(), money.Format(b.VAT), b.VATAmountWords)
				fmt.Fprintf(out, "Без НДС: %s\n", money.Format(b.WithoutVAT))
			} else {
				fmt.Fprintf(out, "НДС: %s\n", rate.Label())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&vat, "vat", string(money.DefaultRate), "VAT rate: 22, 10, 7, 5, 0 or none")
	return cmd
}
