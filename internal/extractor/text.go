package extractor

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

// PlainTextStrategy decodes the bytes as UTF-8. In strict mode, used for
// files of unknown kind, binary-looking content is rejected instead.
type PlainTextStrategy struct {
	Strict bool
}

func (s *PlainTextStrategy) Name() string { return "text" }

func (s *PlainTextStrategy) Extract(ctx context.Context, f RawFile) Result {
	data := bytes.TrimPrefix(f.Data, []byte("\xef\xbb\xbf"))
	if s.Strict {
		if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
			return failure("content is not UTF-8 text")
		}
		return success(strings.TrimSpace(string(data)))
	}
	return success(strings.ToValidUTF8(string(data), "�"))
}
