package plugin

import (
	"bytes"
	"html"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PdfParserPlugin rewrites a PDF response into extractable HTML: it reads
// the document's text content page by page and wraps it in a <pre> block so
// the selector extractor (C8) can treat it like any other page body.
type PdfParserPlugin struct{ Base }

func (PdfParserPlugin) Name() string { return "pdf_parser" }

func (PdfParserPlugin) OnResponse(ctx *ResponseContext) (*ResponseContext, error) {
	contentType := strings.ToLower(firstNonEmpty(ctx.ContentType, headerValue(ctx.Headers, "content-type")))
	content := ctx.Content
	if content == nil {
		content = []byte(ctx.Body)
	}
	if !strings.Contains(contentType, "application/pdf") && !looksLikePDF(content) {
		return nil, nil
	}

	text, err := extractPDFText(content)
	if err != nil || text == "" {
		return nil, nil
	}

	body := "<pre>" + html.EscapeString(text) + "</pre>"
	next := *ctx
	next.Body = body
	next.Content = []byte(body)
	next.ContentType = "text/html"
	next.Headers = cloneStringMap(ctx.Headers)
	if next.Headers == nil {
		next.Headers = map[string]string{}
	}
	next.Headers["content-type"] = "text/html"
	return &next, nil
}

func looksLikePDF(content []byte) bool {
	return bytes.HasPrefix(content, []byte("%PDF"))
}

func extractPDFText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
