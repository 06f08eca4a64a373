// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rasterize renders the pages of a PDF into numbered JPEG files.
// Pages are drawn by poppler's pdftoppm, one process per page, and then
// re-encoded at the configured quality, downscaled when wider than the
// configured maximum.
package rasterize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/docflow/internal/fsutil"
	"github.com/pdiddy/docflow/pkg/types"
)

const binPdftoppm = "pdftoppm"

// ErrToolMissing reports that pdftoppm could not be found.
var ErrToolMissing = errors.New("pdftoppm not found")

// PageName returns the file name of a 1-based page number.
func PageName(page int) string {
	return fmt.Sprintf("page_%03d.jpg", page)
}

// Rasterizer converts PDFs to page images.
type Rasterizer struct {
	cfg       types.PDF2ImgConfig
	exec      executor
	pageCount func(path string) (int, error)
	logger    *zap.Logger
}

// New returns a rasterizer using cfg. Zero fields fall back to 200 dpi,
// quality 95 and four concurrent pages.
func New(cfg types.PDF2ImgConfig, logger *zap.Logger) *Rasterizer {
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 95
	}
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 4
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = binPdftoppm
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rasterizer{
		cfg:       cfg,
		exec:      osExecutor{},
		pageCount: api.PageCountFile,
		logger:    logger,
	}
}

// Available reports whether pdftoppm can be run.
func (r *Rasterizer) Available() error {
	if _, err := r.exec.LookPath(r.cfg.PdftoppmPath); err != nil {
		return fmt.Errorf("%w at %q: install poppler-utils or set pdf2img.pdftoppm_path", ErrToolMissing, r.cfg.PdftoppmPath)
	}
	return nil
}

// Convert renders every page of pdfPath into outDir as page_NNN.jpg and
// returns the page count. Pages render concurrently, bounded by the
// configured thread count. Any page failure fails the whole document.
func (r *Rasterizer) Convert(ctx context.Context, pdfPath, outDir string) (int, error) {
	pages, err := r.pageCount(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", filepath.Base(pdfPath), err)
	}
	if pages == 0 {
		return 0, fmt.Errorf("%s has no pages", filepath.Base(pdfPath))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}
	work, err := os.MkdirTemp(outDir, ".render-*")
	if err != nil {
		return 0, fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(work)

	log := r.logger.With(zap.String("pdf", pdfPath), zap.Int("pages", pages))
	log.Debug("rasterizing")

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.ThreadCount)
	for i := 1; i <= pages; i++ {
		page := i
		eg.Go(func() error {
			if err := r.renderPage(gctx, pdfPath, work, outDir, page); err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	log.Debug("rasterized")
	return pages, nil
}

func (r *Rasterizer) renderPage(ctx context.Context, pdfPath, work, outDir string, page int) error {
	prefix := filepath.Join(work, fmt.Sprintf("page_%03d", page))
	args := []string{
		"-r", fmt.Sprint(r.cfg.DPI),
		"-f", fmt.Sprint(page),
		"-l", fmt.Sprint(page),
		"-png", "-singlefile",
		pdfPath, prefix,
	}
	if err := r.exec.Run(ctx, r.cfg.PdftoppmPath, args...); err != nil {
		return fmt.Errorf("running pdftoppm: %w", err)
	}

	img, err := imaging.Open(prefix + ".png")
	if err != nil {
		return fmt.Errorf("opening rendered page: %w", err)
	}
	img = r.fit(img)
	return writeJPEG(img, filepath.Join(outDir, PageName(page)), r.cfg.Quality)
}

func (r *Rasterizer) fit(img image.Image) image.Image {
	if r.cfg.MaxWidth <= 0 || img.Bounds().Dx() <= r.cfg.MaxWidth {
		return img
	}
	return imaging.Resize(img, r.cfg.MaxWidth, 0, imaging.Lanczos)
}

func writeJPEG(img image.Image, dest string, quality int) error {
	return fsutil.Write(dest, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	})
}
