package extract

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>|<w:br[^>]*/>|<w:tab[^>]*/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// docxPages returns the document body as a single page; DOCX carries no
// reliable page breaks.
func docxPages(data []byte) ([]string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()
	return []string{docxText(r.Editable().GetContent())}, nil
}

func docxText(body string) string {
	body = docxParagraphEnd.ReplaceAllStringFunc(body, func(tag string) string {
		if strings.HasPrefix(tag, "<w:tab") {
			return "\t"
		}
		return "\n"
	})
	return html.UnescapeString(xmlTag.ReplaceAllString(body, ""))
}
