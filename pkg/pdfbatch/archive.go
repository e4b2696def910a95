package pdfbatch

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
)

// ReadArchive returns the regular files of a zip archive. Entries that
// cannot be read are logged and left out.
func ReadArchive(data []byte) ([]Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	docs := make([]Document, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		content, err := readEntry(f)
		if err != nil {
			log.Warn().
				Err(err).
				Str("component", "pdfbatch").
				Str("entry", f.Name).
				Msg("Skipping unreadable archive entry")
			continue
		}
		docs = append(docs, Document{Name: f.Name, Data: content})
	}
	return docs, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Entry is one file to place in an output archive.
type Entry struct {
	Name string
	Data []byte
}

// WriteArchive writes entries to w as a deflated zip in the given order.
func WriteArchive(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("create entry %s: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return fmt.Errorf("write entry %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// Entries converts merged outputs to archive entries.
func Entries(merged []Merged) []Entry {
	out := make([]Entry, len(merged))
	for i, m := range merged {
		out[i] = Entry{Name: m.Name, Data: m.Data}
	}
	return out
}
