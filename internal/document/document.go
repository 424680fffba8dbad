// Package document defines the generated bid document and its exports.
package document

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNoContent is returned when a document has neither sections nor a
// signature block after repair.
var ErrNoContent = errors.New("document has no content")

// Section is one heading/content pair. Content separates lines with "\n" and
// table columns with "|".
type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Document is the structured output of generation.
type Document struct {
	Title          string    `json:"title"`
	Sections       []Section `json:"sections"`
	SignatureBlock string    `json:"signature_block"`
}

var newlineFixer = strings.NewReplacer("\r\n", "\n", "\r", "\n", `\n`, "\n")

// Repair normalises line breaks, fills a missing title with fallbackTitle and
// drops sections that carry neither heading nor content. Section order is
// kept as is. It returns ErrNoContent if nothing usable remains.
func (d *Document) Repair(fallbackTitle string) error {
	d.Title = strings.TrimSpace(newlineFixer.Replace(d.Title))
	if d.Title == "" {
		d.Title = strings.TrimSpace(fallbackTitle)
	}

	kept := d.Sections[:0]
	for _, s := range d.Sections {
		s.Heading = strings.TrimSpace(newlineFixer.Replace(s.Heading))
		s.Content = strings.Trim(newlineFixer.Replace(s.Content), "\n ")
		if s.Heading == "" && s.Content == "" {
			continue
		}
		kept = append(kept, s)
	}
	d.Sections = kept
	d.SignatureBlock = strings.Trim(newlineFixer.Replace(d.SignatureBlock), "\n ")

	if len(d.Sections) == 0 && d.SignatureBlock == "" {
		return ErrNoContent
	}
	return nil
}

// PlainText renders the document for preview or a .txt download.
func (d *Document) PlainText() string {
	var sb strings.Builder
	sb.WriteString(d.Title)
	sb.WriteString("\n\n")
	for _, s := range d.Sections {
		if s.Heading != "" {
			sb.WriteString(s.Heading)
			sb.WriteString("\n")
		}
		if s.Content != "" {
			sb.WriteString(s.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if d.SignatureBlock != "" {
		sb.WriteString(d.SignatureBlock)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FileName turns a title into a download name: letters, digits and spaces
// only, at most 50 characters, "document" when nothing is left.
func FileName(title, ext string) string {
	var sb strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			sb.WriteRune(r)
		}
	}
	name := strings.TrimSpace(sb.String())
	if utf8.RuneCountInString(name) > 50 {
		name = strings.TrimSpace(string([]rune(name)[:50]))
	}
	if name == "" {
		name = "document"
	}
	return name + ext
}
