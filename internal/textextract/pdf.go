// Package textextract converts statement documents into plain text.
package textextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
)

// ErrNoText is returned for documents without an extractable text layer,
// such as scanned statements.
var ErrNoText = errors.New("document has no extractable text")

// PDFExtractor reads the text layer of PDF documents.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText returns the plain text of every page, in order.
func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The PDF reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ExtractText: malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("ExtractText: open PDF: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ExtractText: read text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("ExtractText: read text: %w", err)
	}

	if strings.TrimSpace(buf.String()) == "" {
		return "", ErrNoText
	}
	return buf.String(), nil
}
