package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// ReadCSV parses delimited text. The delimiter (comma, semicolon or tab) is
// detected from the header line; exports from the Brazilian back office use
// semicolons while re-saved files usually use commas.
func ReadCSV(r io.Reader, source string) (*Table, error) {
	tr, err := textReader(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	br := bufio.NewReader(tr)
	head, _ := br.Peek(4096)
	if len(bytes.TrimSpace(head)) == 0 {
		return nil, ErrEmptyFile
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(head)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv %s: %w", source, err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}

	return fromRecords(source, records, func(i int) int { return lines[i] })
}

// sniffDelimiter counts candidate separators on the first line, ignoring
// anything inside double quotes.
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}

	counts := map[rune]int{',': 0, ';': 0, '\t': 0}
	quoted := false
	for _, b := range head {
		switch {
		case b == '"':
			quoted = !quoted
		case quoted:
		case b == ',' || b == ';' || b == '\t':
			counts[rune(b)]++
		}
	}

	best := ','
	for _, c := range []rune{';', '\t'} {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}
