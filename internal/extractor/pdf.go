package extractor

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFTextStrategy reads the embedded text layer of a PDF page by page.
// Scanned documents have no text layer and fall through to vision.
type PDFTextStrategy struct {
	MinText int
}

func (s *PDFTextStrategy) Name() string { return "pdf-text" }

func (s *PDFTextStrategy) Extract(ctx context.Context, f RawFile) (res Result) {
	// ledongthuc/pdf panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			res = failure("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return failure("failed to open pdf: %v", err)
	}

	var sb strings.Builder
	numPages := r.NumPage()
	for pageIndex := 1; pageIndex <= numPages; pageIndex++ {
		if ctx.Err() != nil {
			return failure("cancelled on page %d: %v", pageIndex, ctx.Err())
		}
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(text))
	}

	return gate(sb.String(), s.MinText)
}
