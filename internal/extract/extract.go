// Package extract converts uploaded document bodies into plain text.
//
// Dispatch is by declared media type first and filename extension second.
// Extraction never returns an error: unreadable input yields ok=false so the
// caller can degrade to a placeholder.
package extract

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"credence/internal/logging"
)

// Format is the extractor family chosen for a document.
type Format int

const (
	FormatUnknown Format = iota
	FormatText
	FormatPDF
	FormatDocx
	FormatXLSX
	FormatXLS
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatPDF:
		return "pdf"
	case FormatDocx:
		return "docx"
	case FormatXLSX:
		return "xlsx"
	case FormatXLS:
		return "xls"
	case FormatCSV:
		return "csv"
	}
	return "unknown"
}

// Media types recognized by Classify.
const (
	MediaPDF  = "application/pdf"
	MediaDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaXLS  = "application/vnd.ms-excel"
	MediaCSV  = "text/csv"
	MediaJSON = "application/json"
)

// DefaultMaxSheets caps the number of rendered spreadsheet sheets.
const DefaultMaxSheets = 5

func formatForMediaType(mt string) (Format, bool) {
	switch mt {
	case MediaPDF:
		return FormatPDF, true
	case MediaDocx:
		return FormatDocx, true
	case MediaXLSX:
		return FormatXLSX, true
	case MediaXLS, "application/msexcel", "application/x-msexcel":
		return FormatXLS, true
	case MediaCSV, "application/csv":
		return FormatCSV, true
	case MediaJSON:
		return FormatText, true
	}
	return FormatUnknown, false
}

var extFormats = map[string]Format{
	".txt":  FormatText,
	".json": FormatText,
	".md":   FormatText,
	".pdf":  FormatPDF,
	".docx": FormatDocx,
	".xlsx": FormatXLSX,
	".xls":  FormatXLS,
	".csv":  FormatCSV,
}

// Classify picks the extractor family for a document.
func Classify(mediaType, filename string) Format {
	mt := normalizeMediaType(mediaType)
	if f, ok := formatForMediaType(mt); ok {
		return f
	}
	// csv is matched above; every other text/* is verbatim text
	if strings.HasPrefix(mt, "text/") {
		return FormatText
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	return FormatUnknown
}

func normalizeMediaType(mediaType string) string {
	mt := strings.TrimSpace(strings.ToLower(mediaType))
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		return strings.TrimSpace(mt[:i])
	}
	return mt
}

// Options tune extraction.
type Options struct {
	MaxSheets int
}

// Extract returns the plain text of data. ok is false when the content is
// unreadable or empty after extraction.
func Extract(data []byte, mediaType, filename string) (string, bool) {
	return ExtractWithOptions(data, mediaType, filename, Options{MaxSheets: DefaultMaxSheets})
}

// ExtractWithOptions is Extract with a custom sheet cap.
func ExtractWithOptions(data []byte, mediaType, filename string, opts Options) (text string, ok bool) {
	if opts.MaxSheets <= 0 {
		opts.MaxSheets = DefaultMaxSheets
	}
	format := Classify(mediaType, filename)

	defer func() {
		if r := recover(); r != nil {
			logging.ExtractWarn("extractor panic for %q (%s): %v", filename, format, r)
			text, ok = "", false
		}
	}()

	var err error
	switch format {
	case FormatText, FormatUnknown:
		text, err = decodeText(data)
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDocx:
		text, err = extractDocx(data)
	case FormatXLSX:
		text, err = extractXLSX(data, opts.MaxSheets)
	case FormatXLS:
		text, err = extractXLS(data, opts.MaxSheets)
	case FormatCSV:
		text, err = extractCSV(data, sheetNameFromFile(filename))
	}
	if err != nil {
		logging.ExtractWarn("extract %q as %s failed: %v", filename, format, err)
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		logging.ExtractDebug("extract %q as %s produced no text", filename, format)
		return "", false
	}

	logging.ExtractDebug("extracted %d bytes from %q (%s)", len(text), filename, format)
	return text, true
}

// decodeText accepts valid UTF-8 only; a UTF-8 BOM is dropped.
func decodeText(data []byte) (string, error) {
	data = trimBOM(data)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return string(data), nil
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
