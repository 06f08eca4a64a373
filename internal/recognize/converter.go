// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/docflow/internal/fsutil"
	"github.com/pdiddy/docflow/internal/scan"
	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

// ErrNoPages reports a folder where no page could be turned into text.
var ErrNoPages = errors.New("no pages recognized")

// Converter turns a folder of page images into one Markdown document.
type Converter struct {
	backend     Backend
	delay       time.Duration
	placeholder string
	logger      *zap.Logger
}

// NewConverter wraps backend with the pacing and placeholder settings.
func NewConverter(backend Backend, cfg types.Img2MarkdownConfig, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		backend:     backend,
		delay:       cfg.DelayBetweenRequests,
		placeholder: cfg.ErrorPlaceholder,
		logger:      logger,
	}
}

// ConvertFolder recognizes every JPEG in folder in page order and writes
// the pages joined by blank lines to outPath. Pages that fail are logged
// and left out. It returns the number of pages kept.
func (c *Converter) ConvertFolder(ctx context.Context, folder, outPath string) (int, error) {
	images, err := scan.JPEGs(folder)
	if err != nil {
		return 0, fmt.Errorf("listing images in %s: %w", folder, err)
	}
	if len(images) == 0 {
		return 0, fmt.Errorf("no JPEG images in %s", folder)
	}
	SortPages(images)

	var pages []string
	for i, img := range images {
		if i > 0 {
			if err := sleep(ctx, c.delay); err != nil {
				return 0, err
			}
		}

		text, err := c.recognizeFile(ctx, img)
		switch {
		case errors.Is(err, task.ErrFatal):
			return 0, err
		case ctx.Err() != nil:
			return 0, ctx.Err()
		case err != nil:
			c.logger.Warn("page recognition failed", zap.String("image", img), zap.Error(err))
			continue
		}
		if text == "" || (c.placeholder != "" && text == c.placeholder) {
			continue
		}
		pages = append(pages, text)
	}

	if len(pages) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPages, folder)
	}
	if err := fsutil.WriteFile(outPath, []byte(strings.Join(pages, "\n\n"))); err != nil {
		return 0, fmt.Errorf("writing %s: %w", outPath, err)
	}
	c.logger.Debug("folder converted",
		zap.String("folder", folder),
		zap.Int("pages", len(pages)),
		zap.Int("images", len(images)))
	return len(pages), nil
}

func (c *Converter) recognizeFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := c.backend.Recognize(ctx, data, "image/jpeg")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// SortPages orders image paths by the number after the last underscore of
// the file stem ("page_012.jpg" is page 12). Stems without one sort as page
// 0; ties fall back to the file name.
func SortPages(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		pi, pj := pageNumber(paths[i]), pageNumber(paths[j])
		if pi != pj {
			return pi < pj
		}
		return filepath.Base(paths[i]) < filepath.Base(paths[j])
	})
}

func pageNumber(path string) int {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		stem = stem[i+1:]
	}
	n, err := strconv.Atoi(stem)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
