package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"lumen-backend/internal/shared/storage/object"
)

// Extraction methods reported back to the pipeline.
const (
	MethodPDFText  = "pdf-text"
	MethodPDFOCR   = "pdf-ocr"
	MethodImageOCR = "image-ocr"
)

const renderDPI = 300

// Result carries extracted text and the method that produced it.
type Result struct {
	Text   string
	Method string
}

// Extractor pulls text from stored documents. Digital PDFs are read
// natively; scanned PDFs and images go through pdftoppm/tesseract.
type Extractor struct {
	store         object.ObjectStore
	runner        Runner
	tesseractPath string
	pdftoppmPath  string
}

// NewExtractor builds an extractor over the given object store.
func NewExtractor(store object.ObjectStore, tesseractPath, pdftoppmPath string) *Extractor {
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	return &Extractor{
		store:         store,
		runner:        execRunner{},
		tesseractPath: tesseractPath,
		pdftoppmPath:  pdftoppmPath,
	}
}

// ExtractText reads the stored object at fileKey and returns its text.
func (e *Extractor) ExtractText(ctx context.Context, fileKey string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	body, err := e.store.Open(ctx, fileKey)
	if err != nil {
		return Result{}, fmt.Errorf("extract text key=%s: %w", fileKey, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return Result{}, fmt.Errorf("extract text key=%s: read: %w", fileKey, err)
	}

	ext := strings.ToLower(filepath.Ext(fileKey))
	switch ext {
	case ".pdf":
		return e.extractPDF(ctx, raw)
	case ".jpg", ".jpeg", ".png":
		text, err := e.ocrImageBytes(ctx, raw, ext)
		if err != nil {
			return Result{}, fmt.Errorf("extract text key=%s: %w", fileKey, err)
		}
		return Result{Text: text, Method: MethodImageOCR}, nil
	default:
		return Result{}, fmt.Errorf("unsupported extension: %q", ext)
	}
}

// extractPDF tries native text extraction first, then rasterizes and
// OCRs when the PDF carries no text layer.
func (e *Extractor) extractPDF(ctx context.Context, raw []byte) (Result, error) {
	text, err := pdfPlainText(raw)
	if err == nil && strings.TrimSpace(text) != "" {
		return Result{Text: strings.TrimSpace(text), Method: MethodPDFText}, nil
	}

	text, ocrErr := e.ocrPDFBytes(ctx, raw)
	if ocrErr != nil {
		if err != nil {
			return Result{}, fmt.Errorf("pdf text: %v; pdf ocr: %w", err, ocrErr)
		}
		return Result{}, fmt.Errorf("pdf ocr: %w", ocrErr)
	}
	return Result{Text: text, Method: MethodPDFOCR}, nil
}

func pdfPlainText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *Extractor) ocrPDFBytes(ctx context.Context, raw []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "lumen-ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, raw, 0o600); err != nil {
		return "", err
	}

	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := e.runner.Run(ctx, e.pdftoppmPath, "-r", fmt.Sprintf("%d", renderDPI), "-png", pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %v: %s", err, truncate(string(errb), 512))
	}

	pages, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(pages)
	if len(pages) == 0 {
		return "", fmt.Errorf("pdftoppm produced no images")
	}

	var b strings.Builder
	for _, page := range pages {
		text, err := e.tesseract(ctx, page)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String()), nil
}

func (e *Extractor) ocrImageBytes(ctx context.Context, raw []byte, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "lumen-ocr-*"+ext)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	text, err := e.tesseract(ctx, tmp.Name())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *Extractor) tesseract(ctx context.Context, imagePath string) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.tesseractPath, imagePath, "stdout", "--psm", "6", "-l", "eng")
	if err != nil {
		return "", fmt.Errorf("tesseract: %v: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
