package pdfbatch

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"resume.pdf", true},
		{"RESUME.PDF", true},
		{"nested/dir/cv.Pdf", true},
		{"notes.txt", false},
		{"pdf", false},
		{"archive.pdf.zip", false},
		{"__MACOSX/._resume.pdf", false},
		{"__MACOSX/sub/x.pdf", false},
		{"folder.pdf/", false},
	}

	for _, tt := range tests {
		if got := IsPDF(tt.name); got != tt.want {
			t.Errorf("IsPDF(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSelect(t *testing.T) {
	docs := []Document{
		{Name: "b.pdf"},
		{Name: "readme.md"},
		{Name: "A.PDF"},
		{Name: "__MACOSX/._a.pdf"},
		{Name: "a.pdf"},
		{Name: "dir/c.pdf"},
	}

	got := Select(docs)

	want := []string{"A.PDF", "a.pdf", "b.pdf", "dir/c.pdf"}
	if len(got) != len(want) {
		t.Fatalf("Select() = %d docs, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("Select()[%d] = %q, want %q", i, got[i].Name, name)
		}
	}
	if docs[0].Name != "b.pdf" {
		t.Error("Select() reordered its input")
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		count, size int
		want        []Span
	}{
		{23, 10, []Span{{0, 10}, {10, 20}, {20, 23}}},
		{20, 10, []Span{{0, 10}, {10, 20}}},
		{3, 10, []Span{{0, 3}}},
		{3, 1, []Span{{0, 1}, {1, 2}, {2, 3}}},
		{0, 10, nil},
		{5, 0, nil},
		{2, math.MaxInt, []Span{{0, 2}}},
		{math.MaxInt, math.MaxInt - 1, []Span{{0, math.MaxInt - 1}, {math.MaxInt - 1, math.MaxInt}}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.count, tt.size), func(t *testing.T) {
			got := Partition(tt.count, tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("Partition() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	tests := map[int]string{
		0:   "combined_001.pdf",
		9:   "combined_010.pdf",
		122: "combined_123.pdf",
		999: "combined_1000.pdf",
	}
	for i, want := range tests {
		if got := OutputName(i); got != want {
			t.Errorf("OutputName(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err    error
		want   string
		wantOK bool
	}{
		{ErrInvalidBatchSize, "PDFs per file must be at least 1", true},
		{ErrNoDocuments, "No PDF files found in the ZIP", true},
		{ErrNoReadableDocuments, "Could not read any PDF files from the ZIP", true},
		{fmt.Errorf("%w: zip: not a valid zip file", ErrInvalidArchive), "Invalid ZIP file", true},
		{errors.New("merge failed"), "", false},
	}

	for _, tt := range tests {
		got, ok := Message(tt.err)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Message(%v) = %q, %v; want %q, %v", tt.err, got, ok, tt.want, tt.wantOK)
		}
	}
}
