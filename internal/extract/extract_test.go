package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pdfchat/internal/domain"
)

type fakePages struct {
	texts []string
	fail  map[int]bool
	panic map[int]bool
}

func (f fakePages) NumPage() int { return len(f.texts) }

func (f fakePages) PageText(i int) (string, error) {
	if f.panic[i] {
		panic("malformed content stream")
	}
	if f.fail[i] {
		return "", errors.New("no text layer")
	}
	return f.texts[i-1], nil
}

func pagedFormat(src fakePages) Format {
	return Paged(func([]byte) (PageSource, error) { return src, nil })
}

func TestExtract(t *testing.T) {
	t.Run("ShouldRejectEmptyUploadList", func(t *testing.T) {
		_, err := New().Extract(nil)
		require.ErrorIs(t, err, domain.ErrNoDocuments)
	})

	t.Run("ShouldTreatFailedPageAsEmpty", func(t *testing.T) {
		e := New()
		e.Register(".fake", pagedFormat(fakePages{
			texts: []string{"first page text", "unreadable"},
			fail:  map[int]bool{2: true},
		}))
		res, err := e.Extract([]domain.Upload{{Name: "scan.fake"}})
		require.NoError(t, err)
		assert.Equal(t, "first page text", res.Corpus)
		require.Len(t, res.Documents, 1)
		assert.Equal(t, 2, res.Documents[0].Pages)
		assert.Equal(t, 1, res.Documents[0].EmptyPages)
	})

	t.Run("ShouldRecoverFromPagePanics", func(t *testing.T) {
		e := New()
		e.Register(".fake", pagedFormat(fakePages{
			texts: []string{"a", "b", "c"},
			panic: map[int]bool{2: true},
		}))
		res, err := e.Extract([]domain.Upload{{Name: "x.fake"}})
		require.NoError(t, err)
		assert.Equal(t, "ac", res.Corpus)
	})

	t.Run("ShouldConcatenateInUploadOrder", func(t *testing.T) {
		res, err := New().Extract([]domain.Upload{
			{Name: "b.txt", Data: []byte("second ")},
			{Name: "a.txt", Data: []byte("first")},
		})
		require.NoError(t, err)
		assert.Equal(t, "second first", res.Corpus)
	})

	t.Run("ShouldSkipUnreadableDocumentsAndContinue", func(t *testing.T) {
		res, err := New().Extract([]domain.Upload{
			{Name: "broken.pdf", Data: []byte("definitely not a pdf")},
			{Name: "notes.bin", Data: []byte{0x00}},
			{Name: "ok.txt", Data: []byte("kept")},
		})
		require.NoError(t, err)
		assert.Equal(t, "kept", res.Corpus)
		skipped := res.Skipped()
		require.Len(t, skipped, 2)
		assert.Equal(t, "broken.pdf", skipped[0].Name)
		assert.ErrorIs(t, skipped[1].Err, domain.ErrUnsupportedFormat)
	})

	t.Run("ShouldFailWhenNothingReadable", func(t *testing.T) {
		res, err := New().Extract([]domain.Upload{{Name: "broken.pdf", Data: []byte("garbage")}})
		require.ErrorIs(t, err, domain.ErrNoText)
		assert.Len(t, res.Skipped(), 1)
	})

	t.Run("ShouldBeIdempotent", func(t *testing.T) {
		uploads := []domain.Upload{
			{Name: "a.md", Data: []byte("# Title\n\nBody text.\n")},
			{Name: "b.txt", Data: []byte("plain")},
		}
		first, err := New().Extract(uploads)
		require.NoError(t, err)
		second, err := New().Extract(uploads)
		require.NoError(t, err)
		assert.Equal(t, first.Corpus, second.Corpus)
	})
}

func TestMarkdownPages(t *testing.T) {
	src := "# Title\n\nSome *emphasis* and `code`.\n\n- item one\n- item two\n\n```\nfenced line\n```\n"
	pages, err := markdownPages([]byte(src))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	got := pages[0]
	assert.Contains(t, got, "Title\n")
	assert.Contains(t, got, "Some emphasis and code.")
	assert.Contains(t, got, "item one")
	assert.Contains(t, got, "item two")
	assert.Contains(t, got, "fenced line")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "*")
	assert.NotContains(t, got, "`")
}

func TestXLSXPages(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "qty"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "bolts"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 12))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Other", "A1", "memo"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	pages, err := xlsxPages(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "## Sheet: Sheet1\nname\tqty\nbolts\t12\n", pages[0])
	assert.Equal(t, "## Sheet: Other\nmemo\n", pages[1])
}

func TestDOCXPages(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?><w:document><w:body>` +
			`<w:p><w:r><w:t>Hello &amp; welcome</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>para</w:t></w:r></w:p>` +
			`</w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships></Relationships>`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	pages, err := docxPages(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0], "Hello & welcome\n")
	assert.Contains(t, pages[0], "Second\tpara\n")
}

func TestPDFPagesRejectsGarbage(t *testing.T) {
	_, err := pdfPages([]byte("%PDF-nope"))
	require.Error(t, err)
}
