package ingest

// decode.go prepares delimited-text input for encoding/csv.
//
// Back-office exports arrive in two encodings: UTF-8 (often with a BOM when
// they passed through Excel) and Windows-1252. The first block of the stream
// is sniffed once; UTF-8 input is passed through a sanitizer that replaces
// stray invalid bytes with U+FFFD, anything else is decoded as Windows-1252.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const sniffSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// textReader returns a UTF-8 reader over r with any BOM removed.
func textReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)

	head, err := br.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}

	if bytes.HasPrefix(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
		head = head[len(utf8BOM):]
	}

	if !looksUTF8(head) {
		return transform.NewReader(br, charmap.Windows1252.NewDecoder()), nil
	}
	return sanitizeUTF8(br), nil
}

// looksUTF8 reports whether b is valid UTF-8, allowing a truncated rune at
// the very end (the sniff window can split one).
func looksUTF8(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			return !utf8.FullRune(b)
		}
		b = b[size:]
	}
	return true
}

// sanitizeUTF8 replaces ill-formed UTF-8 with U+FFFD as data streams
// through. Runes split across underlying reads are reassembled by the
// transformer.
func sanitizeUTF8(r io.Reader) io.Reader {
	return transform.NewReader(r, runes.ReplaceIllFormed())
}
