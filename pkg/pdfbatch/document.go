// Package pdfbatch regroups a set of PDF documents into fixed-size batches
// and merges each batch into a single PDF.
//
// Batch membership depends only on the sorted document names, so running
// the same input twice always yields the same groups.
package pdfbatch

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// DefaultBatchSize is the number of source documents per output document.
const DefaultBatchSize = 10

// metadataPrefix marks resource-fork entries written by macOS archivers.
const metadataPrefix = "__MACOSX"

// Caller input errors. Message gives the text shown to callers.
var (
	ErrInvalidBatchSize    = errors.New("batch size must be at least 1")
	ErrNoDocuments         = errors.New("no pdf files in archive")
	ErrNoReadableDocuments = errors.New("no readable pdf files in archive")
	ErrInvalidArchive      = errors.New("invalid zip archive")
)

var messages = map[error]string{
	ErrInvalidBatchSize:    "PDFs per file must be at least 1",
	ErrNoDocuments:         "No PDF files found in the ZIP",
	ErrNoReadableDocuments: "Could not read any PDF files from the ZIP",
	ErrInvalidArchive:      "Invalid ZIP file",
}

// Message returns the caller-facing text for a caller input error and
// false for any other error.
func Message(err error) (string, bool) {
	for sentinel, msg := range messages {
		if errors.Is(err, sentinel) {
			return msg, true
		}
	}
	return "", false
}

// Document is a named source file.
type Document struct {
	Name string
	Data []byte
}

// Merged is one assembled output document.
type Merged struct {
	Name  string
	Data  []byte
	Pages int

	// Sources lists the documents merged into this output, in page order.
	Sources []string
	// Skipped lists the batch members that could not be parsed.
	Skipped []string
}

// Span is a half-open index range [Start, End).
type Span struct {
	Start, End int
}

// Len returns the number of elements in s.
func (s Span) Len() int {
	return s.End - s.Start
}

// IsPDF reports whether name has a .pdf extension, ignoring case, and lies
// outside the macOS metadata directory.
func IsPDF(name string) bool {
	if strings.HasPrefix(name, metadataPrefix) || strings.HasSuffix(name, "/") {
		return false
	}
	return strings.EqualFold(path.Ext(name), ".pdf")
}

// Select keeps the PDF documents of docs sorted by name in byte order.
// docs is not modified.
func Select(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if IsPDF(d.Name) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Partition splits count items into ceil(count/size) consecutive spans of
// at most size items. size must be positive.
func Partition(count, size int) []Span {
	if count <= 0 || size <= 0 {
		return nil
	}

	n := count / size
	if count%size != 0 {
		n++
	}

	spans := make([]Span, 0, n)
	for start := 0; start < count; {
		end := count
		if size < count-start {
			end = start + size
		}
		spans = append(spans, Span{Start: start, End: end})
		start = end
	}
	return spans
}

// OutputName returns the file name of the batch at 0-based index i.
func OutputName(i int) string {
	return fmt.Sprintf("combined_%03d.pdf", i+1)
}
