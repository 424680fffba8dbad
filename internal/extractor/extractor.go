package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"tenderprep/internal/archive"
)

// Kind is the declared format of an uploaded file.
type Kind int

const (
	Other Kind = iota
	WordPackage
	PlainText
	PDF
)

func (k Kind) String() string {
	switch k {
	case WordPackage:
		return "docx"
	case PlainText:
		return "text"
	case PDF:
		return "pdf"
	default:
		return "other"
	}
}

// DetectKind infers a file's kind from its extension, falling back to magic
// bytes for files uploaded without a useful name.
func DetectKind(name string, data []byte) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx", ".docm", ".dotx", ".dotm":
		return WordPackage
	case ".txt", ".csv", ".md", ".xml", ".html", ".htm", ".json":
		return PlainText
	case ".pdf":
		return PDF
	}
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return PDF
	case bytes.HasPrefix(data, []byte{'P', 'K', 3, 4}):
		return WordPackage
	}
	return Other
}

// RawFile is one uploaded tender file, as downloaded from storage.
type RawFile struct {
	Name string
	Data []byte
	Kind Kind
}

// ExtractedText is the plain-text rendering of one RawFile.
type ExtractedText struct {
	Source      string `json:"source"`
	Text        string `json:"text"`
	TemplateFor string `json:"templateFor,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
}

// Options tunes extraction. Zero values fall back to the defaults below.
type Options struct {
	MinStructuralText int           // quality gate for structural strategies, in runes
	InflateTimeout    time.Duration // per-entry decompression budget
	PDFTextLayer      bool          // try the PDF text layer before vision
	MaxVisionBytes    int           // files above this are not sent to vision
	Workers           int           // concurrent extractions in ExtractAll
	Budget            time.Duration // wall-clock budget for ExtractAll
}

const (
	DefaultMinStructuralText = 50
	DefaultMaxVisionBytes    = 20 << 20
	DefaultWorkers           = 4
	DefaultBudget            = 40 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MinStructuralText <= 0 {
		o.MinStructuralText = DefaultMinStructuralText
	}
	if o.InflateTimeout <= 0 {
		o.InflateTimeout = archive.DefaultInflateTimeout
	}
	if o.MaxVisionBytes <= 0 {
		o.MaxVisionBytes = DefaultMaxVisionBytes
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	return o
}

// Result is the outcome of a single strategy. A zero Err means success.
type Result struct {
	Text string
	Err  error
}

func (r Result) OK() bool { return r.Err == nil }

func success(text string) Result { return Result{Text: text} }

func failure(format string, args ...any) Result {
	return Result{Err: fmt.Errorf(format, args...)}
}

// Strategy is one way of turning a file into text.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, f RawFile) Result
}

// Extractor runs an ordered strategy chain per file kind and stops at the
// first strategy that succeeds.
type Extractor struct {
	opts   Options
	chains map[Kind][]Strategy
}

// New builds an Extractor. vision may be nil, in which case files that need
// transcription come back empty.
func New(vision Transcriber, opts Options) *Extractor {
	opts = opts.withDefaults()
	visionStrategy := &VisionStrategy{Transcriber: vision, MaxBytes: opts.MaxVisionBytes}

	pdfChain := []Strategy{}
	if opts.PDFTextLayer {
		pdfChain = append(pdfChain, &PDFTextStrategy{MinText: opts.MinStructuralText})
	}
	pdfChain = append(pdfChain, visionStrategy)

	return &Extractor{
		opts: opts,
		chains: map[Kind][]Strategy{
			WordPackage: {
				&ArchiveStrategy{MinText: opts.MinStructuralText, InflateTimeout: opts.InflateTimeout},
				&DocxLibraryStrategy{MinText: opts.MinStructuralText},
				visionStrategy,
			},
			PlainText: {&PlainTextStrategy{}},
			PDF:       pdfChain,
			Other:     {&PlainTextStrategy{Strict: true}},
		},
	}
}

// Chain returns the strategies tried for kind, in order.
func (e *Extractor) Chain(kind Kind) []Strategy {
	return e.chains[kind]
}

// Extract returns the best-effort text of f, or "" when every strategy failed.
func (e *Extractor) Extract(ctx context.Context, f RawFile) string {
	text, _ := e.extract(ctx, f)
	return text
}

func (e *Extractor) extract(ctx context.Context, f RawFile) (string, string) {
	start := time.Now()
	for _, s := range e.Chain(f.Kind) {
		if ctx.Err() != nil {
			log.Printf("Extraction of %s cancelled: %v", f.Name, ctx.Err())
			return "", ""
		}
		res := s.Extract(ctx, f)
		if res.OK() {
			log.Printf("Extracted %s: %d chars via %s in %v", f.Name, utf8.RuneCountInString(res.Text), s.Name(), time.Since(start).Round(time.Millisecond))
			return res.Text, s.Name()
		}
		log.Printf("Strategy %s failed for %s: %v", s.Name(), f.Name, res.Err)
	}
	return "", ""
}
