package extractor

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ExtractAll extracts every file with a bounded number of workers under the
// configured wall-clock budget. Once the budget is spent no new files are
// started, in-flight strategies see a cancelled context, and the files that
// never ran come back with Skipped set. Results keep the order of files.
func (e *Extractor) ExtractAll(ctx context.Context, files []RawFile) []ExtractedText {
	results := make([]ExtractedText, len(files))
	for i, f := range files {
		results[i] = ExtractedText{Source: f.Name, Skipped: true}
	}

	budgetCtx, cancel := context.WithTimeout(ctx, e.opts.Budget)
	defer cancel()

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	for i, f := range files {
		if budgetCtx.Err() != nil {
			log.Printf("Extraction budget exhausted after %v: skipping %d remaining files", time.Since(start).Round(time.Millisecond), len(files)-i)
			break
		}
		g.Go(func() error {
			if budgetCtx.Err() != nil {
				return nil
			}
			text, strategy := e.extract(budgetCtx, f)
			results[i] = ExtractedText{
				Source:   f.Name,
				Text:     strings.TrimSpace(text),
				Strategy: strategy,
			}
			return nil
		})
	}
	_ = g.Wait()

	extracted := 0
	for _, r := range results {
		if r.Text != "" {
			extracted++
		}
	}
	log.Printf("Extraction finished: %d of %d files yielded text in %v", extracted, len(files), time.Since(start).Round(time.Millisecond))
	return results
}
