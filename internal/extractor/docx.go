package extractor

import (
	"bytes"
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nguyenthenguyen/docx"

	"tenderprep/internal/archive"
)

// mainDocumentPart is the virtual path of the body XML inside a Word package.
const mainDocumentPart = "word/document.xml"

// ArchiveStrategy reads the main document part with the built-in header
// scanner: the stored copy first, then a forced inflate of the deflate copy.
type ArchiveStrategy struct {
	MinText        int
	InflateTimeout time.Duration
}

func (s *ArchiveStrategy) Name() string { return "archive" }

func (s *ArchiveStrategy) Extract(ctx context.Context, f RawFile) Result {
	entries := archive.ReadEntries(f.Data)
	if len(entries) == 0 {
		return failure("no readable archive entries")
	}
	entry, ok := entries[mainDocumentPart]
	if !ok {
		return failure("%s not found among %d entries", mainDocumentPart, len(entries))
	}

	var xmlBytes []byte
	switch entry.Method {
	case archive.Stored:
		xmlBytes = entry.Payload
	case archive.Deflate:
		xmlBytes = archive.Inflate(ctx, entry.Payload, s.InflateTimeout)
		if xmlBytes == nil {
			return failure("inflate of %s failed or timed out", mainDocumentPart)
		}
	default:
		return failure("unsupported compression method %d", entry.Method)
	}

	return gate(strings.TrimSpace(FlattenXML(string(xmlBytes))), s.MinText)
}

// DocxLibraryStrategy parses the package with nguyenthenguyen/docx, which
// goes through archive/zip and copes with packages the header scanner cannot
// walk (for example, ones written with data descriptors and Zip64 records).
type DocxLibraryStrategy struct {
	MinText int
}

func (s *DocxLibraryStrategy) Name() string { return "docx" }

func (s *DocxLibraryStrategy) Extract(ctx context.Context, f RawFile) Result {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return failure("failed to read docx: %v", err)
	}
	defer r.Close()

	return gate(strings.TrimSpace(FlattenXML(r.Editable().GetContent())), s.MinText)
}

// gate rejects structural output that is too short to be a real document.
func gate(text string, min int) Result {
	if n := utf8.RuneCountInString(text); n < min {
		return failure("only %d chars extracted, below quality gate of %d", n, min)
	}
	return success(text)
}
