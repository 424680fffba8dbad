package extractor

import (
	"context"
	"strings"
)

// MIME types sent alongside file bytes to the vision model.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Transcriber turns a document attachment into text with a vision-capable
// completion model. llm.Client implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// VisionStrategy is the last resort for every kind that may hold scanned or
// otherwise unparseable content. Any failure is reported as an empty result.
type VisionStrategy struct {
	Transcriber Transcriber
	MaxBytes    int
}

func (s *VisionStrategy) Name() string { return "vision" }

func (s *VisionStrategy) Extract(ctx context.Context, f RawFile) Result {
	if s.Transcriber == nil {
		return failure("no vision model configured")
	}
	if len(f.Data) == 0 {
		return failure("empty file")
	}
	if s.MaxBytes > 0 && len(f.Data) > s.MaxBytes {
		return failure("file is %d bytes, vision limit is %d", len(f.Data), s.MaxBytes)
	}

	text, err := s.Transcriber.Transcribe(ctx, f.Data, mimeFor(f.Kind))
	if err != nil {
		return failure("vision transcription failed: %v", err)
	}
	if strings.TrimSpace(text) == "" {
		return failure("vision model returned no text")
	}
	return success(text)
}

func mimeFor(kind Kind) string {
	if kind == WordPackage {
		return MimeDOCX
	}
	return MimePDF
}
