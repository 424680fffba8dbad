package extractor

import (
	"html"
	"regexp"
	"strings"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// FlattenXML renders WordprocessingML as plain text. Paragraph starts and
// explicit breaks become newlines, bare tab runs become tabs, and each table
// row becomes one line with its cells joined by " | ". All other markup is
// dropped. The result is not trimmed.
func FlattenXML(xmlStr string) string {
	var sb strings.Builder
	sb.Grow(len(xmlStr) / 4)

	var (
		inCell    bool
		cellIndex int
		cellParas int
	)

	newline := func() {
		if inCell {
			sb.WriteByte(' ')
			return
		}
		sb.WriteByte('\n')
	}

	for i := 0; i < len(xmlStr); {
		lt := strings.IndexByte(xmlStr[i:], '<')
		if lt < 0 {
			writeText(&sb, xmlStr[i:])
			break
		}
		writeText(&sb, xmlStr[i:i+lt])
		i += lt

		gt := strings.IndexByte(xmlStr[i:], '>')
		if gt < 0 {
			break
		}
		name, closing, bare := tagInfo(xmlStr[i+1 : i+gt])
		i += gt + 1

		if closing {
			switch name {
			case "w:tc":
				inCell = false
			case "w:tbl":
				sb.WriteByte('\n')
			}
			continue
		}

		switch name {
		case "w:p":
			if inCell {
				if cellParas > 0 {
					sb.WriteByte(' ')
				}
				cellParas++
				continue
			}
			sb.WriteByte('\n')
		case "w:br", "w:cr":
			newline()
		case "w:tab":
			// <w:tab w:val="left" .../> inside <w:tabs> is a tab stop
			// definition, not content.
			if bare {
				sb.WriteByte('\t')
			}
		case "w:tr":
			sb.WriteByte('\n')
			cellIndex = 0
		case "w:tc":
			if cellIndex > 0 {
				sb.WriteString(" | ")
			}
			cellIndex++
			inCell = true
			cellParas = 0
		}
	}

	return excessNewlines.ReplaceAllString(sb.String(), "\n\n")
}

// tagInfo returns the element name of a tag body (the text between < and >),
// whether it is a closing tag, and whether it carries no attributes.
func tagInfo(body string) (name string, closing bool, bare bool) {
	if strings.HasPrefix(body, "/") {
		closing = true
		body = body[1:]
	}
	body = strings.TrimSuffix(body, "/")
	end := strings.IndexAny(body, " \t\r\n")
	if end < 0 {
		return body, closing, true
	}
	return body[:end], closing, false
}

// writeText appends character data, decoding entities. Line breaks inside
// character data are formatting of the XML itself and are dropped.
func writeText(sb *strings.Builder, s string) {
	if s == "" {
		return
	}
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
	}
	if strings.IndexByte(s, '&') >= 0 {
		s = html.UnescapeString(s)
	}
	sb.WriteString(s)
}
