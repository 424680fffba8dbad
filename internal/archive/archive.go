// Package archive reads the local file headers of a ZIP buffer without
// relying on archive/zip. Uploaded packages are untrusted, so every read is
// bounds-checked and a malformed entry ends the scan with whatever was
// collected before it.
package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"time"
)

const (
	localHeaderSig   = 0x04034b50
	centralHeaderSig = 0x02014b50
	descriptorSig    = 0x08074b50

	localHeaderLen = 30
	flagDescriptor = 0x0008
)

// Method is the compression method code of an entry.
type Method uint16

const (
	Stored  Method = 0
	Deflate Method = 8
)

func (m Method) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflate:
		return "deflate"
	default:
		return "other"
	}
}

// Entry is a single archive member. Payload holds the bytes exactly as they
// appear in the archive: verbatim for stored entries, still compressed for
// deflate entries.
type Entry struct {
	Path             string
	Method           Method
	Flags            uint16
	CompressedSize   uint32
	UncompressedSize uint32
	Payload          []byte
}

// Open returns the entry's uncompressed bytes. Stored payloads are returned
// as-is; deflate payloads are inflated under the given timeout. Any other
// method, or a failed inflate, yields nil.
func (e Entry) Open(ctx context.Context, timeout time.Duration) []byte {
	switch e.Method {
	case Stored:
		return e.Payload
	case Deflate:
		return Inflate(ctx, e.Payload, timeout)
	default:
		return nil
	}
}

// ReadEntries walks the buffer from offset 0 and returns every entry whose
// local header could be parsed, keyed by slash-separated path. Scanning stops
// at the first non-header signature or at the first truncated record.
func ReadEntries(data []byte) map[string]Entry {
	entries := make(map[string]Entry)
	off := 0
	for off+localHeaderLen <= len(data) {
		if binary.LittleEndian.Uint32(data[off:]) != localHeaderSig {
			break
		}
		entry, next, ok := readEntry(data, off)
		if !ok {
			break
		}
		if entry.Path != "" {
			entries[entry.Path] = entry
		}
		off = next
	}
	return entries
}

// readEntry parses the record at off and returns the entry plus the offset
// immediately after its payload (and data descriptor, if any).
func readEntry(data []byte, off int) (Entry, int, bool) {
	h := data[off : off+localHeaderLen]
	flags := binary.LittleEndian.Uint16(h[6:])
	method := binary.LittleEndian.Uint16(h[8:])
	csize := binary.LittleEndian.Uint32(h[18:])
	usize := binary.LittleEndian.Uint32(h[22:])
	nameLen := int(binary.LittleEndian.Uint16(h[26:]))
	extraLen := int(binary.LittleEndian.Uint16(h[28:]))

	nameStart := off + localHeaderLen
	payloadStart := nameStart + nameLen + extraLen
	if payloadStart > len(data) {
		return Entry{}, 0, false
	}
	name := strings.ReplaceAll(string(data[nameStart:nameStart+nameLen]), `\`, "/")

	entry := Entry{
		Path:             name,
		Method:           Method(method),
		Flags:            flags,
		CompressedSize:   csize,
		UncompressedSize: usize,
	}

	if flags&flagDescriptor != 0 && csize == 0 && usize == 0 {
		return readDescriptorEntry(data, payloadStart, entry)
	}

	// Deflate payloads occupy exactly the compressed size; stored entries
	// carry equal sizes, and some writers fill in only one of the two.
	size := int64(csize)
	if size == 0 {
		size = int64(usize)
	}
	end := int64(payloadStart) + size
	if end > int64(len(data)) {
		return Entry{}, 0, false
	}
	entry.Payload = data[payloadStart:end]
	next := int(end)
	if flags&flagDescriptor != 0 {
		next = skipDescriptor(data, next)
	}
	return entry, next, true
}

// readDescriptorEntry handles entries written in streaming mode, where the
// sizes follow the payload in a data descriptor. The payload boundary is found
// by locating the next header signature and validating the descriptor that
// precedes it.
func readDescriptorEntry(data []byte, payloadStart int, entry Entry) (Entry, int, bool) {
	search := payloadStart
	for search < len(data) {
		idx := nextHeader(data[search:])
		if idx < 0 {
			return Entry{}, 0, false
		}
		boundary := search + idx
		for _, dlen := range []int{16, 12} {
			dstart := boundary - dlen
			if dstart < payloadStart {
				continue
			}
			d := data[dstart:boundary]
			body := d
			if dlen == 16 {
				if binary.LittleEndian.Uint32(d) != descriptorSig {
					continue
				}
				body = d[4:]
			}
			csize := binary.LittleEndian.Uint32(body[4:])
			if int(csize) != dstart-payloadStart {
				continue
			}
			entry.CompressedSize = csize
			entry.UncompressedSize = binary.LittleEndian.Uint32(body[8:])
			entry.Payload = data[payloadStart:dstart]
			return entry, boundary, true
		}
		search = boundary + 4
	}
	return Entry{}, 0, false
}

func nextHeader(b []byte) int {
	local := bytes.Index(b, []byte{'P', 'K', 3, 4})
	central := bytes.Index(b, []byte{'P', 'K', 1, 2})
	switch {
	case local < 0:
		return central
	case central < 0:
		return local
	case local < central:
		return local
	default:
		return central
	}
}

// skipDescriptor steps over a data descriptor that follows a payload whose
// sizes were already known from the local header.
func skipDescriptor(data []byte, off int) int {
	if off+4 <= len(data) && binary.LittleEndian.Uint32(data[off:]) == descriptorSig {
		if off+16 <= len(data) {
			return off + 16
		}
		return len(data)
	}
	if off+16 <= len(data) {
		sig := binary.LittleEndian.Uint32(data[off+12:])
		if sig == localHeaderSig || sig == centralHeaderSig {
			return off + 12
		}
	}
	return off
}
