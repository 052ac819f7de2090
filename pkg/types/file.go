package types

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// File is an in-memory file handle flowing between workflow steps.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func NewFile(name string, data []byte) *File {
	return &File{
		Name:        name,
		ContentType: contentTypeFor(name),
		Data:        data,
	}
}

// OpenFile reads a local file into memory.
func OpenFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file %q: %w", path, err)
	}
	return NewFile(filepath.Base(path), data), nil
}

func (f *File) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".csv":
		return "text/csv"
	case ".sql":
		return "application/sql"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
