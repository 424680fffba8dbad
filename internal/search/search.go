// Package search provides BM25 keyword search over the texts extracted from
// an analysis' tender files.
package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/ru"
	"github.com/blevesearch/bleve/v2/mapping"

	"tenderprep/internal/extractor"
)

const (
	chunkWords   = 150
	chunkOverlap = 30
	snippetRunes = 300
	// DefaultTopK is used when Search is called with topK <= 0.
	DefaultTopK = 5
)

// Hit is one matching file with its best-scoring passage.
type Hit struct {
	Source  string  `json:"source"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

type chunk struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Index is an in-memory BM25 index of extracted texts.
type Index struct {
	bm25   bleve.Index
	chunks map[string]chunk
}

func newMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = ru.AnalyzerName
	source := bleve.NewKeywordFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("source", source)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = ru.AnalyzerName
	return m
}

// Build indexes every non-empty text, split into overlapping word chunks.
func Build(texts []extractor.ExtractedText) (*Index, error) {
	bm25, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	idx := &Index{bm25: bm25, chunks: make(map[string]chunk)}

	batch := bm25.NewBatch()
	for _, t := range texts {
		for _, c := range Chunk(t.Text) {
			id := fmt.Sprintf("%s#c%d", t.Source, len(idx.chunks))
			ch := chunk{Source: t.Source, Text: c}
			idx.chunks[id] = ch
			if err := batch.Index(id, ch); err != nil {
				bm25.Close()
				return nil, fmt.Errorf("index %s: %w", t.Source, err)
			}
		}
	}
	if err := bm25.Batch(batch); err != nil {
		bm25.Close()
		return nil, fmt.Errorf("index batch: %w", err)
	}
	return idx, nil
}

// Chunk splits text into windows of chunkWords words overlapping by
// chunkOverlap words.
func Chunk(text string) []string {
	words := strings.Fields(text)
	var out []string
	for i := 0; i < len(words); i += chunkWords - chunkOverlap {
		end := min(i+chunkWords, len(words))
		out = append(out, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int { return len(i.chunks) }

// Search returns up to topK files ranked by their best chunk. Only the
// best-scoring chunk of each file is reported.
func (i *Index) Search(query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	hits := []Hit{}
	if strings.TrimSpace(query) == "" || len(i.chunks) == 0 {
		return hits, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = topK * 3
	res, err := i.bm25.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	seen := make(map[string]bool)
	for _, h := range res.Hits {
		if len(hits) >= topK {
			break
		}
		c, ok := i.chunks[h.ID]
		if !ok || seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		hits = append(hits, Hit{Source: c.Source, Snippet: snippet(c.Text), Score: h.Score})
	}
	return hits, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.bm25.Close()
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	r := []rune(s)
	return string(r[:snippetRunes]) + "…"
}
