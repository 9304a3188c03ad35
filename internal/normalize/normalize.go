// Package normalize turns typed text, recorded speech and uploaded documents
// into plain text.
//
// Documents are classified as PDF or image by content type and filename. PDFs
// are read through their text layer first; when that yields nothing the pages
// are rasterized and recognised with OCR, exactly once, and any OCR failure on
// that path is treated as "no text". Images go straight to OCR, where a missing
// engine is reported as [ErrOCRUnavailable] so callers can tell the operator
// what to install.
package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"path"
	"strings"

	// Registered decoders for uploaded images.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/vilakkam/vilakkam/internal/normalize/ocr"
	"github.com/vilakkam/vilakkam/pkg/provider/stt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrEmptyInput is returned for a zero-length audio or document payload.
	ErrEmptyInput = errors.New("normalize: empty input")

	// ErrUnsupportedType is returned for documents that are neither PDF nor image.
	ErrUnsupportedType = errors.New("normalize: unsupported file type")

	// ErrOCRUnavailable is returned when an image cannot be recognised because
	// the OCR engine is not installed.
	ErrOCRUnavailable = errors.New("normalize: ocr engine unavailable")

	// ErrTranscription wraps any failure of the transcription capability,
	// including a transcript with no usable text.
	ErrTranscription = errors.New("normalize: transcription failed")

	// ErrExtraction wraps unexpected document extraction failures.
	ErrExtraction = errors.New("normalize: extraction failed")
)

// DefaultLanguage is the transcription language hint.
const DefaultLanguage = "ta"

// DefaultMaxImagePixels bounds width*height of an uploaded image. A phone
// photo or a 300 dpi A4 scan is well below it.
const DefaultMaxImagePixels = 40_000_000

var imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tif", ".tiff", ".gif"}

// PDFTextFunc returns the text layer of each page of a PDF, in page order.
type PDFTextFunc func(data []byte) ([]string, error)

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLanguage sets the transcription language hint. Defaults to "ta".
func WithLanguage(lang string) Option {
	return func(n *Normalizer) {
		n.language = lang
	}
}

// WithMaxImagePixels sets the largest decoded image area, in pixels. Larger
// images are rejected with ErrExtraction before any pixel data is allocated.
func WithMaxImagePixels(px int) Option {
	return func(n *Normalizer) {
		if px > 0 {
			n.maxPixels = px
		}
	}
}

// WithPDFText replaces the PDF text-layer reader.
func WithPDFText(fn PDFTextFunc) Option {
	return func(n *Normalizer) {
		n.pdfText = fn
	}
}

// WithLogger sets the logger used for degrade paths. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		n.log = l
	}
}

// Normalizer converts Requests into plain text. It holds no per-request state
// and is safe for concurrent use.
type Normalizer struct {
	stt       stt.Provider
	ocr       ocr.Engine
	pdfText   PDFTextFunc
	language  string
	maxPixels int
	log       *slog.Logger
}

// New returns a Normalizer. transcriber and engine must be non-nil.
func New(transcriber stt.Provider, engine ocr.Engine, opts ...Option) (*Normalizer, error) {
	if transcriber == nil {
		return nil, errors.New("normalize: stt provider must not be nil")
	}
	if engine == nil {
		return nil, errors.New("normalize: ocr engine must not be nil")
	}
	n := &Normalizer{
		stt:       transcriber,
		ocr:       engine,
		pdfText:   PDFPages,
		language:  DefaultLanguage,
		maxPixels: DefaultMaxImagePixels,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Normalize dispatches on the Request variant.
func (n *Normalizer) Normalize(ctx context.Context, req Request) (Result, error) {
	switch req.kind {
	case KindText:
		return Result{Text: req.text, Provenance: ProvenanceDirectText}, nil
	case KindAudio:
		return n.FromAudio(ctx, req.data, req.filename, req.contentType)
	case KindDocument:
		return n.FromDocument(ctx, req.data, req.filename, req.contentType)
	default:
		return Result{}, fmt.Errorf("normalize: unknown request kind %d", req.kind)
	}
}

// FromAudio transcribes data with the configured language hint.
func (n *Normalizer) FromAudio(ctx context.Context, data []byte, filename, contentType string) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyInput
	}
	text, err := n.stt.Transcribe(ctx, stt.Request{
		Data:        data,
		Filename:    filename,
		ContentType: contentType,
		Language:    n.language,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: %w", ErrTranscription, stt.ErrNoSpeech)
	}
	return Result{Text: text, Provenance: ProvenanceSpeechTranscript}, nil
}

// FromDocument extracts text from a PDF or image upload.
func (n *Normalizer) FromDocument(ctx context.Context, data []byte, filename, contentType string) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyInput
	}
	switch classify(filename, contentType) {
	case docPDF:
		return n.fromPDF(ctx, data)
	case docImage:
		return n.fromImage(ctx, data)
	default:
		return Result{}, ErrUnsupportedType
	}
}

func (n *Normalizer) fromPDF(ctx context.Context, data []byte) (Result, error) {
	pages, layerErr := n.pdfText(data)
	if layerErr != nil {
		n.log.WarnContext(ctx, "normalize: pdf text layer unreadable, trying ocr", "err", layerErr)
	}
	if text := ocr.JoinPages(pages); text != "" {
		return Result{Text: text, Provenance: ProvenanceDirectText}, nil
	}

	text, err := n.ocr.PDF(ctx, data)
	if err != nil {
		n.log.WarnContext(ctx, "normalize: pdf ocr fallback produced no text", "err", err)
		text = ""
	}
	text = strings.TrimSpace(text)
	if text == "" && layerErr != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExtraction, layerErr)
	}
	return Result{Text: text, Provenance: ProvenanceOCRFallback}, nil
}

func (n *Normalizer) fromImage(ctx context.Context, data []byte) (Result, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode image header: %w", ErrExtraction, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > int64(n.maxPixels) {
		return Result{}, fmt.Errorf("%w: image is %dx%d, limit %d pixels", ErrExtraction, cfg.Width, cfg.Height, n.maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode image: %w", ErrExtraction, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("%w: encode png: %w", ErrExtraction, err)
	}

	text, err := n.ocr.Image(ctx, buf.Bytes())
	if err != nil {
		if errors.Is(err, ocr.ErrUnavailable) {
			return Result{}, fmt.Errorf("%w: %w", ErrOCRUnavailable, err)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return Result{Text: strings.TrimSpace(text), Provenance: ProvenanceImageOCR}, nil
}

type docClass int

const (
	docUnsupported docClass = iota
	docPDF
	docImage
)

func classify(filename, contentType string) docClass {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	ext := strings.ToLower(path.Ext(filename))
	switch {
	case ct == "application/pdf" || ext == ".pdf":
		return docPDF
	case strings.HasPrefix(ct, "image/"):
		return docImage
	}
	for _, e := range imageExts {
		if ext == e {
			return docImage
		}
	}
	return docUnsupported
}
