package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
)

// IsPDF sniffs the payload rather than trusting the declared content type.
func IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is("application/pdf")
}

// PDFText returns the plain text of every page in the document.
func PDFText(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", fmt.Errorf("%w: payload is not a pdf", appErr.ErrInvalid)
	}
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf: %v", appErr.ErrInvalid, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", appErr.ErrInvalid, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
