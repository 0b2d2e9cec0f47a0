package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"pdfchat/internal/domain"
)

// Format turns the raw bytes of one document into its page texts, in page
// order. A page that yields no text is an empty string; an error means the
// document as a whole could not be read.
type Format interface {
	Pages(data []byte) ([]string, error)
}

// FormatFunc adapts a function to the Format interface.
type FormatFunc func(data []byte) ([]string, error)

// Pages implements Format.
func (f FormatFunc) Pages(data []byte) ([]string, error) { return f(data) }

// DocumentReport describes what was recovered from one upload.
type DocumentReport struct {
	Name       string `json:"name"`
	Pages      int    `json:"pages"`
	EmptyPages int    `json:"empty_pages"`
	Err        error  `json:"-"`
}

// Result is the corpus text of one Process action plus per-document reports.
type Result struct {
	Corpus    string
	Documents []DocumentReport
}

// Skipped returns the reports of documents that could not be read at all.
func (r Result) Skipped() []DocumentReport {
	var out []DocumentReport
	for _, d := range r.Documents {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Extractor dispatches uploads to a Format by file extension.
type Extractor struct {
	formats map[string]Format
}

// New returns an extractor that understands pdf, docx, xlsx, markdown and
// plain text files.
func New() *Extractor {
	e := &Extractor{formats: make(map[string]Format)}
	e.Register(".pdf", FormatFunc(pdfPages))
	e.Register(".docx", FormatFunc(docxPages))
	e.Register(".xlsx", FormatFunc(xlsxPages))
	e.Register(".md", FormatFunc(markdownPages))
	e.Register(".markdown", FormatFunc(markdownPages))
	e.Register(".txt", FormatFunc(textPages))
	return e
}

// Register binds a file extension (with leading dot) to a format.
func (e *Extractor) Register(ext string, f Format) {
	e.formats[strings.ToLower(ext)] = f
}

// Supports reports whether the file name has a registered extension.
func (e *Extractor) Supports(name string) bool {
	_, ok := e.formats[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extract concatenates the text of every page of every upload, documents in
// upload order and pages in page order. Documents that cannot be read are
// skipped and reported; extraction fails only when nothing readable remains.
func (e *Extractor) Extract(uploads []domain.Upload) (Result, error) {
	if len(uploads) == 0 {
		return Result{}, domain.ErrNoDocuments
	}
	var corpus strings.Builder
	res := Result{Documents: make([]DocumentReport, 0, len(uploads))}
	for _, u := range uploads {
		report := DocumentReport{Name: u.Name}
		pages, err := e.pages(u)
		if err != nil {
			report.Err = err
			log.Warn().Err(err).Str("document", u.Name).Msg("Skipping unreadable document")
			res.Documents = append(res.Documents, report)
			continue
		}
		report.Pages = len(pages)
		for _, p := range pages {
			if p == "" {
				report.EmptyPages++
			}
			corpus.WriteString(p)
		}
		log.Debug().Str("document", u.Name).Int("pages", report.Pages).Int("empty_pages", report.EmptyPages).Msg("Extracted document")
		res.Documents = append(res.Documents, report)
	}
	res.Corpus = corpus.String()
	if strings.TrimSpace(res.Corpus) == "" {
		return res, fmt.Errorf("%w: %d of %d documents unreadable", domain.ErrNoText, len(res.Skipped()), len(uploads))
	}
	return res, nil
}

func (e *Extractor) pages(u domain.Upload) (pages []string, err error) {
	ext := strings.ToLower(filepath.Ext(u.Name))
	f, ok := e.formats[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read %s: %v", u.Name, r)
		}
	}()
	return f.Pages(u.Data)
}
