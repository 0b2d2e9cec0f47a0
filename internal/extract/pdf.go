package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// PageSource is a document that exposes its text page by page. Pages are
// numbered from 1.
type PageSource interface {
	NumPage() int
	PageText(i int) (string, error)
}

type pdfReader struct {
	r *pdf.Reader
}

func (p pdfReader) NumPage() int { return p.r.NumPage() }

func (p pdfReader) PageText(i int) (string, error) {
	page := p.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// Paged adapts a page-oriented reader to Format. A page that fails or
// panics contributes an empty string.
func Paged(open func(data []byte) (PageSource, error)) Format {
	return FormatFunc(func(data []byte) ([]string, error) {
		src, err := open(data)
		if err != nil {
			return nil, err
		}
		return readPages(src), nil
	})
}

func openPDF(data []byte) (PageSource, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return pdfReader{r: r}, nil
}

func pdfPages(data []byte) ([]string, error) {
	return Paged(openPDF).Pages(data)
}

// readPages collects page texts (1-based pages). A page that fails or panics
// contributes an empty string.
func readPages(src PageSource) []string {
	n := src.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, safePageText(src, i))
	}
	return pages
}

func safePageText(src PageSource, i int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Int("page", i).Interface("panic", r).Msg("Page text extraction panicked")
			text = ""
		}
	}()
	t, err := src.PageText(i)
	if err != nil {
		log.Debug().Err(err).Int("page", i).Msg("Page text extraction failed")
		return ""
	}
	return t
}
