package fetch

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// FirstPageText returns the plain text of page 1 of a PDF document, or "" when
// the document has no pages.
//
// The PDF parser panics on some malformed inputs; those panics are returned as errors.
func FirstPageText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	if r.NumPage() == 0 {
		return "", nil
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page 1 text: %w", err)
	}
	return text, nil
}
