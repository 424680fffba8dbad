// Package template decides which uploaded files, if any, hold the form the
// requested document has to reproduce.
package template

import (
	"log"
	"strings"
	"unicode/utf8"

	"tenderprep/internal/extractor"
)

// Thresholds are the heuristic knobs of the matcher.
type Thresholds struct {
	NamePrefix   int     // leading runes of the name that must appear in a file name
	BodyWindow   int     // leading runes of a body used for the fuzzy body match
	FileOverlap  float64 // word overlap a file must exceed in the strict pass
	LooseOverlap float64 // word overlap a whole text must reach in the loose pass
	MinLength    int     // combined template text must be longer than this
}

// DefaultThresholds returns the values the matcher was tuned with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NamePrefix:   20,
		BodyWindow:   2000,
		FileOverlap:  0.4,
		LooseOverlap: 0.5,
		MinLength:    50,
	}
}

// Rule names reported in Match.Rule.
const (
	RuleFileName   = "file-name"
	RuleBodyPhrase = "body-phrase"
	RuleFileWords  = "file-words"
	RuleBodyWords  = "body-words"
	RuleLooseWords = "loose-words"
)

// Match records why a file was taken as a template.
type Match struct {
	Source string  `json:"source"`
	Rule   string  `json:"rule"`
	Score  float64 `json:"score,omitempty"`
}

// Decision is the outcome for one requested document. When Found is false,
// Text is empty and no matches are reported.
type Decision struct {
	Found        bool                      `json:"found"`
	Text         string                    `json:"-"`
	MatchedFiles []string                  `json:"matchedFiles"`
	Matches      []Match                   `json:"matches,omitempty"`
	Sources      []extractor.ExtractedText `json:"-"`
}

// Locate runs the strict pass over every text and, if it finds nothing, the
// loose pass. Matching texts are concatenated in input order.
func Locate(documentName string, texts []extractor.ExtractedText, th Thresholds) Decision {
	name := Normalize(documentName)
	if name == "" {
		return Decision{}
	}
	words := SignificantWords(name)
	namePrefix := prefix(name, th.NamePrefix)

	var matches []Match
	var matched []extractor.ExtractedText
	for _, t := range texts {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if m, ok := strictMatch(t, name, namePrefix, words, th); ok {
			matches = append(matches, m)
			matched = append(matched, t)
		}
	}

	if len(matched) == 0 && len(words) > 0 {
		for _, t := range texts {
			if strings.TrimSpace(t.Text) == "" {
				continue
			}
			if score := overlap(words, Normalize(t.Text)); score >= th.LooseOverlap {
				matches = append(matches, Match{Source: t.Source, Rule: RuleLooseWords, Score: score})
				matched = append(matched, t)
			}
		}
	}

	return decide(documentName, matches, matched, th)
}

func strictMatch(t extractor.ExtractedText, name, namePrefix string, words []string, th Thresholds) (Match, bool) {
	file := Normalize(t.Source)
	if strings.Contains(file, namePrefix) {
		return Match{Source: t.Source, Rule: RuleFileName}, true
	}
	if strings.Contains(Normalize(t.Text), name) {
		return Match{Source: t.Source, Rule: RuleBodyPhrase}, true
	}
	if score := overlap(words, file); score > th.FileOverlap {
		return Match{Source: t.Source, Rule: RuleFileWords, Score: score}, true
	}
	head := Normalize(prefix(t.Text, th.BodyWindow))
	if score := overlap(words, head); score > th.FileOverlap {
		return Match{Source: t.Source, Rule: RuleBodyWords, Score: score}, true
	}
	return Match{}, false
}

func decide(documentName string, matches []Match, matched []extractor.ExtractedText, th Thresholds) Decision {
	if len(matched) == 0 {
		log.Printf("No template found for %q", documentName)
		return Decision{}
	}

	var sb strings.Builder
	bodyLen := 0
	files := make([]string, 0, len(matched))
	sources := make([]extractor.ExtractedText, 0, len(matched))
	for _, t := range matched {
		body := strings.TrimSpace(t.Text)
		bodyLen += utf8.RuneCountInString(body)
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("=== " + t.Source + " ===\n")
		sb.WriteString(body)
		files = append(files, t.Source)
		t.TemplateFor = documentName
		sources = append(sources, t)
	}

	if bodyLen <= th.MinLength {
		log.Printf("Template candidates for %q too short (%d chars), treating as not found", documentName, bodyLen)
		return Decision{}
	}

	log.Printf("Template for %q found in %d file(s): %s", documentName, len(files), strings.Join(files, ", "))
	return Decision{
		Found:        true,
		Text:         sb.String(),
		MatchedFiles: files,
		Matches:      matches,
		Sources:      sources,
	}
}
