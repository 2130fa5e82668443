package extractor

import (
	"context"
	"strings"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// ByMime routes extraction by the document's MIME type. Unknown types fall
// through to the plain text extractor, which rejects binary content itself.
type ByMime struct {
	PDF       ports.TextExtractor
	PlainText ports.TextExtractor
}

func NewByMime(pdfExtractor, plainExtractor ports.TextExtractor) *ByMime {
	return &ByMime{PDF: pdfExtractor, PlainText: plainExtractor}
}

func (e *ByMime) Extract(ctx context.Context, doc *domain.ReferenceDocument) (string, error) {
	mime := strings.ToLower(doc.MimeType)
	if strings.Contains(mime, "pdf") || strings.HasSuffix(strings.ToLower(doc.Filename), ".pdf") {
		return e.PDF.Extract(ctx, doc)
	}
	return e.PlainText.Extract(ctx, doc)
}
