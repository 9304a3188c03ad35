package normalize

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFPages reads the text layer of every page. Pages without content yield an
// empty string so the slice index matches the page number minus one.
//
// The parser panics on some malformed inputs; those are returned as errors.
func PDFPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf: open: %w", err)
	}
	n := r.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("pdf: page %d: %w", i, err)
		}
		pages[i-1] = text
	}
	return pages, nil
}
