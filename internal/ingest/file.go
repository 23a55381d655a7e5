package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize bounds a single source file (and a single zip member).
const DefaultMaxFileSize int64 = 100 << 20

var supportedExt = map[string]bool{
	".csv":  true,
	".txt":  true,
	".xlsx": true,
	".xls":  true,
	".zip":  true,
}

// Supported reports whether name has an extension ReadFile understands.
func Supported(name string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(name))]
}

// ReadFile reads one source file. A zip bundle yields one table per
// supported member; every other format yields exactly one table.
func ReadFile(path string, maxSize int64) ([]*Table, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyFile)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file too large: %s is %d bytes (limit %d)", filepath.Base(path), info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return readBytes(filepath.Base(path), data, maxSize)
}

func readBytes(source string, data []byte, maxSize int64) ([]*Table, error) {
	var (
		t   *Table
		err error
	)

	switch strings.ToLower(filepath.Ext(source)) {
	case ".csv", ".txt":
		t, err = ReadCSV(bytes.NewReader(data), source)
	case ".xlsx":
		t, err = ReadXLSX(bytes.NewReader(data), source)
	case ".xls":
		t, err = ReadXLS(bytes.NewReader(data), source)
	case ".zip":
		return readZip(source, data, maxSize)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, source)
	}

	if err != nil {
		return nil, err
	}
	return []*Table{t}, nil
}

// readZip expands a bundle in memory. Nested archives and members with
// unknown extensions are ignored; an empty member is skipped.
func readZip(source string, data []byte, maxSize int64) ([]*Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, source, err)
	}

	var tables []*Table
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !Supported(f.Name) || strings.EqualFold(filepath.Ext(f.Name), ".zip") {
			continue
		}
		if int64(f.UncompressedSize64) > maxSize {
			return nil, fmt.Errorf("file too large: %s!%s is %d bytes (limit %d)", source, f.Name, f.UncompressedSize64, maxSize)
		}
		if f.UncompressedSize64 == 0 {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s!%s: %v", ErrCorruptFile, source, f.Name, err)
		}
		member, err := io.ReadAll(io.LimitReader(rc, maxSize))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s!%s: %v", ErrCorruptFile, source, f.Name, err)
		}

		got, err := readBytes(source+"!"+filepath.Base(f.Name), member, maxSize)
		if err != nil {
			return nil, err
		}
		tables = append(tables, got...)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyFile)
	}
	return tables, nil
}
