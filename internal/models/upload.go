package models

import (
	"path/filepath"
	"strings"
)

// FileFormat is the tabular format of an uploaded file, derived from its extension
type FileFormat string

const (
	FileFormatCSV     FileFormat = "csv"
	FileFormatXLSX    FileFormat = "xlsx"
	FileFormatXLS     FileFormat = "xls"
	FileFormatUnknown FileFormat = ""
)

// UploadFile is the raw file an operator selected. The content is never
// modified after construction; accessors hand out copies.
type UploadFile struct {
	name    string
	content []byte
}

// NewUploadFile copies content so later writes to the caller's buffer cannot
// change what gets validated or committed.
func NewUploadFile(name string, content []byte) UploadFile {
	buf := make([]byte, len(content))
	copy(buf, content)
	return UploadFile{name: name, content: buf}
}

// Name returns the original file name
func (f UploadFile) Name() string {
	return f.name
}

// Size returns the file size in bytes
func (f UploadFile) Size() int64 {
	return int64(len(f.content))
}

// Bytes returns a copy of the file content
func (f UploadFile) Bytes() []byte {
	buf := make([]byte, len(f.content))
	copy(buf, f.content)
	return buf
}

// IsZero reports whether no file has been selected
func (f UploadFile) IsZero() bool {
	return f.name == "" && len(f.content) == 0
}

// Format returns the format implied by the file extension
func (f UploadFile) Format() FileFormat {
	switch strings.ToLower(filepath.Ext(f.name)) {
	case ".csv":
		return FileFormatCSV
	case ".xlsx":
		return FileFormatXLSX
	case ".xls":
		return FileFormatXLS
	default:
		return FileFormatUnknown
	}
}

// ContentType returns the MIME type sent upstream for this file
func (f UploadFile) ContentType() string {
	switch f.Format() {
	case FileFormatCSV:
		return "text/csv"
	case FileFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FileFormatXLS:
		return "application/vnd.ms-excel"
	default:
		return "application/octet-stream"
	}
}
