package pdfbatch

import (
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ashby_pdf_batches_total",
		Help: "Total merged PDF batches produced",
	})

	documentsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ashby_pdf_documents_skipped_total",
		Help: "Total source PDFs skipped because they could not be parsed",
	})

	assembleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ashby_pdf_assemble_duration_seconds",
		Help:    "Duration of a complete assembly",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// mergeFunc concatenates the documents read from rs into w.
type mergeFunc func(rs []io.ReadSeeker, w io.Writer) error

func mergeRaw(rs []io.ReadSeeker, w io.Writer) error {
	return api.MergeRaw(rs, w, false, configuration())
}

// Assembler merges batches of PDF documents. Safe for concurrent use.
type Assembler struct {
	logger zerolog.Logger
	merge  mergeFunc
}

// NewAssembler creates an assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		logger: log.With().Str("component", "pdfbatch").Logger(),
		merge:  mergeRaw,
	}
}

// configuration returns a fresh pdfcpu configuration; pdfcpu records the
// running command on it, so one is never shared between calls. Relaxed
// validation accepts the minor format violations common in generated resumes.
func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Assemble selects the PDFs of docs, partitions them by batchSize and
// merges every partition, returning one Merged per partition in order.
// Documents that fail to parse are skipped within their batch; a batch
// left without any parsable document is emitted as an empty PDF.
func (a *Assembler) Assemble(docs []Document, batchSize int) ([]Merged, error) {
	if batchSize < 1 {
		return nil, ErrInvalidBatchSize
	}

	selected := Select(docs)
	if len(selected) == 0 {
		return nil, ErrNoDocuments
	}

	start := time.Now()
	spans := Partition(len(selected), batchSize)
	out := make([]Merged, 0, len(spans))
	parsed := 0

	for i, span := range spans {
		merged := a.mergeBatch(OutputName(i), selected[span.Start:span.End])
		parsed += len(merged.Sources)
		out = append(out, merged)
		batchesTotal.Inc()
	}

	if parsed == 0 {
		return nil, ErrNoReadableDocuments
	}

	assembleDuration.Observe(time.Since(start).Seconds())
	a.logger.Info().
		Int("documents", len(selected)).
		Int("parsed", parsed).
		Int("batches", len(out)).
		Int("batch_size", batchSize).
		Dur("duration", time.Since(start)).
		Msg("Assembly complete")

	return out, nil
}

func (a *Assembler) mergeBatch(name string, batch []Document) Merged {
	merged := Merged{Name: name}

	var parsed []Document
	var pages []int
	for _, doc := range batch {
		n, err := api.PageCount(bytes.NewReader(doc.Data), configuration())
		if err != nil || n == 0 {
			if err == nil {
				err = errors.New("document has no pages")
			}
			a.skip(&merged, doc.Name, err)
			continue
		}
		parsed = append(parsed, doc)
		pages = append(pages, n)
	}

	switch len(parsed) {
	case 0:
		merged.Data = BlankPDF(0)
		return merged
	case 1:
		merged.Data = parsed[0].Data
		merged.Pages = pages[0]
		merged.Sources = []string{parsed[0].Name}
		return merged
	}

	readers := make([]io.ReadSeeker, len(parsed))
	for i, doc := range parsed {
		readers[i] = bytes.NewReader(doc.Data)
	}
	var buf bytes.Buffer
	err := a.merge(readers, &buf)
	if err == nil {
		merged.Data = buf.Bytes()
		for i, doc := range parsed {
			merged.Sources = append(merged.Sources, doc.Name)
			merged.Pages += pages[i]
		}
		return merged
	}

	a.logger.Warn().
		Err(err).
		Str("batch", name).
		Msg("Batch merge failed, merging documents one at a time")
	return a.mergeEach(merged, parsed, pages)
}

// mergeEach appends the documents to the output one at a time, skipping any
// document the merge rejects.
func (a *Assembler) mergeEach(merged Merged, docs []Document, pages []int) Merged {
	var acc []byte
	for i, doc := range docs {
		if acc == nil {
			acc = doc.Data
		} else {
			var buf bytes.Buffer
			if err := a.merge([]io.ReadSeeker{bytes.NewReader(acc), bytes.NewReader(doc.Data)}, &buf); err != nil {
				a.skip(&merged, doc.Name, err)
				continue
			}
			acc = buf.Bytes()
		}
		merged.Sources = append(merged.Sources, doc.Name)
		merged.Pages += pages[i]
	}

	merged.Data = acc
	return merged
}

func (a *Assembler) skip(merged *Merged, doc string, err error) {
	documentsSkippedTotal.Inc()
	a.logger.Warn().
		Err(err).
		Str("document", doc).
		Str("batch", merged.Name).
		Msg("Skipping unreadable PDF")
	merged.Skipped = append(merged.Skipped, doc)
}

// CombineArchive reads a zip archive, assembles its PDFs in batches of
// batchSize and returns a zip archive of the merged outputs.
func (a *Assembler) CombineArchive(archive []byte, batchSize int) ([]byte, []Merged, error) {
	docs, err := ReadArchive(archive)
	if err != nil {
		return nil, nil, err
	}
	merged, err := a.Assemble(docs, batchSize)
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := WriteArchive(&buf, Entries(merged)); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), merged, nil
}
