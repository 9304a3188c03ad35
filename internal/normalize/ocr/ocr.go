// Package ocr runs optical character recognition through the Tesseract
// command-line tool, and rasterizes PDFs with Poppler's pdftoppm so scanned
// documents can be recognised page by page.
//
// Both tools are resolved at call time, so a host that lacks them still
// starts; calls then fail with [ErrUnavailable].
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrUnavailable is returned when a required OCR binary cannot be found.
var ErrUnavailable = errors.New("ocr: engine unavailable")

// Engine recognises text in images and rasterized PDF pages.
type Engine interface {
	// Image returns the text found in an encoded image (PNG, JPEG, TIFF...).
	Image(ctx context.Context, img []byte) (string, error)

	// PDF rasterizes every page of a PDF and returns the non-blank page
	// texts joined by a blank line, in page order.
	PDF(ctx context.Context, pdf []byte) (string, error)
}

// Compile-time interface assertion.
var _ Engine = (*Tesseract)(nil)

// Option configures a Tesseract engine.
type Option func(*Tesseract)

// WithTesseractCmd sets the tesseract executable name or absolute path.
func WithTesseractCmd(cmd string) Option {
	return func(t *Tesseract) {
		if cmd != "" {
			t.tesseractCmd = cmd
		}
	}
}

// WithPdftoppmCmd sets the pdftoppm executable name or absolute path.
func WithPdftoppmCmd(cmd string) Option {
	return func(t *Tesseract) {
		if cmd != "" {
			t.pdftoppmCmd = cmd
		}
	}
}

// WithLanguages sets the tesseract -l argument (e.g., "eng+tam").
func WithLanguages(langs string) Option {
	return func(t *Tesseract) {
		if langs != "" {
			t.languages = langs
		}
	}
}

// WithDPI sets the rasterization resolution for PDF pages.
func WithDPI(dpi int) Option {
	return func(t *Tesseract) {
		if dpi > 0 {
			t.dpi = dpi
		}
	}
}

// WithPageConcurrency bounds how many PDF pages are recognised at once.
func WithPageConcurrency(n int) Option {
	return func(t *Tesseract) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// Tesseract implements Engine by executing the tesseract and pdftoppm
// binaries. It is safe for concurrent use.
type Tesseract struct {
	tesseractCmd string
	pdftoppmCmd  string
	languages    string
	dpi          int
	concurrency  int
}

// NewTesseract returns an engine with defaults tesseract, pdftoppm, "eng",
// 200 dpi and four pages in flight.
func NewTesseract(opts ...Option) *Tesseract {
	t := &Tesseract{
		tesseractCmd: "tesseract",
		pdftoppmCmd:  "pdftoppm",
		languages:    "eng",
		dpi:          200,
		concurrency:  4,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Check reports whether the tesseract binary can be resolved. It is suitable
// as a readiness probe.
func (t *Tesseract) Check(_ context.Context) error {
	if _, err := exec.LookPath(t.tesseractCmd); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, t.tesseractCmd, err)
	}
	return nil
}

// Image implements Engine. The image is streamed to tesseract on stdin.
func (t *Tesseract) Image(ctx context.Context, img []byte) (string, error) {
	path, err := exec.LookPath(t.tesseractCmd)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, t.tesseractCmd, err)
	}

	cmd := exec.CommandContext(ctx, path, "stdin", "stdout", "-l", t.languages)
	cmd.Stdin = bytes.NewReader(img)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ocr: tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// PDF implements Engine.
func (t *Tesseract) PDF(ctx context.Context, pdf []byte) (string, error) {
	pages, cleanup, err := t.rasterize(ctx, pdf)
	if err != nil {
		return "", err
	}
	defer cleanup()

	texts := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, page := range pages {
		g.Go(func() error {
			img, err := os.ReadFile(page)
			if err != nil {
				return fmt.Errorf("ocr: read page %d: %w", i+1, err)
			}
			text, err := t.Image(gctx, img)
			if err != nil {
				return fmt.Errorf("ocr: page %d: %w", i+1, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return JoinPages(texts), nil
}

// rasterize renders every page to a PNG in a temporary directory and returns
// the files in page order together with a cleanup func.
func (t *Tesseract) rasterize(ctx context.Context, pdf []byte) ([]string, func(), error) {
	path, err := exec.LookPath(t.pdftoppmCmd)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, t.pdftoppmCmd, err)
	}

	dir, err := os.MkdirTemp("", "vilakkam-ocr-*")
	if err != nil {
		return nil, nil, fmt.Errorf("ocr: temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ocr: write pdf: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-r", strconv.Itoa(t.dpi), "-png", in, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ocr: pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ocr: list pages: %w", err)
	}
	sortPages(pages)
	return pages, cleanup, nil
}

// sortPages orders pdftoppm output ("page-1.png", "page-10.png", ...) by the
// numeric page suffix. pdftoppm zero-pads, but older builds do not.
func sortPages(pages []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		n, _ := strconv.Atoi(base[strings.LastIndexByte(base, '-')+1:])
		return n
	}
	sort.SliceStable(pages, func(i, j int) bool { return num(pages[i]) < num(pages[j]) })
}

// JoinPages trims each page text, drops blank pages and joins the rest with a
// blank line.
func JoinPages(pages []string) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}
