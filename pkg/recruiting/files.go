package recruiting

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/Sternrassler/ashby-resumes/pkg/enrich"
	"github.com/Sternrassler/ashby-resumes/pkg/pdfbatch"
	"github.com/Sternrassler/ashby-resumes/pkg/progress"
)

const (
	defaultFileName  = "resume.pdf"
	defaultExtension = ".pdf"
)

// ResolveFile exchanges a file handle for a short-lived download URL.
func (s *Service) ResolveFile(ctx context.Context, handle string) (FileInfo, error) {
	env, err := s.caller.Call(ctx, "file.info", map[string]any{"fileHandle": handle})
	if err != nil {
		return FileInfo{}, &OpError{Op: "resolve file", Message: "Failed to get file info", Err: err}
	}

	var info FileInfo
	if err := env.DecodeResults(&info); err != nil {
		return FileInfo{}, &OpError{Op: "resolve file", Message: "Failed to get file info", Err: err}
	}
	if info.URL == "" {
		return FileInfo{}, ErrNoFileURL
	}
	if info.Name == "" {
		info.Name = defaultFileName
	}
	return info, nil
}

// DownloadFile resolves handle and fetches the document bytes.
func (s *Service) DownloadFile(ctx context.Context, handle string) (File, error) {
	info, err := s.ResolveFile(ctx, handle)
	if err != nil {
		return File{}, err
	}

	data, err := s.caller.Fetch(ctx, info.URL)
	if err != nil {
		return File{}, &OpError{Op: "download file", Message: "Failed to download file", Err: err}
	}

	contentType := mime.TypeByExtension(path.Ext(info.Name))
	if contentType == "" {
		contentType = "application/pdf"
	}
	return File{Name: info.Name, ContentType: contentType, Data: data}, nil
}

// BulkDownload fetches every handle and writes the documents to w as a zip
// archive in input order. names[i] labels handles[i]; entries are named
// after the sanitized candidate name plus the original extension. Files
// that cannot be fetched are skipped.
func (s *Service) BulkDownload(ctx context.Context, w io.Writer, handles, names []string) (BulkResult, error) {
	if len(handles) == 0 {
		return BulkResult{}, ErrNoFileHandles
	}

	files := enrich.Run(ctx, handles, func(ctx context.Context, handle string) (*File, error) {
		f, err := s.DownloadFile(ctx, handle)
		if err != nil {
			return nil, err
		}
		return &f, nil
	}, progress.Discard, s.enrich)

	var result BulkResult
	entries := make([]pdfbatch.Entry, 0, len(files))
	used := make(map[string]int, len(files))

	for i, f := range files {
		if f == nil {
			result.Skipped++
			continue
		}

		label := ""
		if i < len(names) {
			label = names[i]
		}
		name := uniqueName(used, entryBase(label, i), entryExt(f.Name))

		entries = append(entries, pdfbatch.Entry{Name: name, Data: f.Data})
		result.Entries = append(result.Entries, name)
	}

	if err := pdfbatch.WriteArchive(w, entries); err != nil {
		return result, fmt.Errorf("write resume archive: %w", err)
	}

	s.logger.Info().
		Int("requested", len(handles)).
		Int("written", len(result.Entries)).
		Int("skipped", result.Skipped).
		Msg("Bulk download complete")

	return result, nil
}

// SanitizeName keeps letters, digits, spaces, hyphens and underscores and
// trims surrounding spaces.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func entryBase(label string, i int) string {
	if safe := SanitizeName(label); safe != "" {
		return safe
	}
	return fmt.Sprintf("candidate_%d", i)
}

func entryExt(fileName string) string {
	if ext := path.Ext(fileName); ext != "" && ext != "." {
		return ext
	}
	return defaultExtension
}

// uniqueName returns base+ext, or "base (n)"+ext when already taken.
func uniqueName(used map[string]int, base, ext string) string {
	key := strings.ToLower(base + ext)
	used[key]++
	if n := used[key]; n > 1 {
		name := fmt.Sprintf("%s (%d)%s", base, n, ext)
		used[strings.ToLower(name)]++
		return name
	}
	return base + ext
}
