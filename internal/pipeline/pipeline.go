// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline binds each task type to the callback that processes one
// of its items: rasterizing a PDF, recognizing a folder of page images, or
// both in sequence. It also decides where each item's output goes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/docflow/internal/scan"
	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

// Rasterizer renders a PDF into numbered page JPEGs.
type Rasterizer interface {
	Available() error
	Convert(ctx context.Context, pdfPath, outDir string) (pages int, err error)
}

// FolderConverter recognizes a folder of page images into one Markdown file.
type FolderConverter interface {
	ConvertFolder(ctx context.Context, folder, outPath string) (pages int, err error)
}

// Pipeline builds processors for task records.
type Pipeline struct {
	paths        types.PathsConfig
	skipExisting bool
	raster       Rasterizer
	convert      FolderConverter
	logger       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRasterizer sets the PDF collaborator used by pdf_to_image and
// full_pipeline tasks.
func WithRasterizer(r Rasterizer) Option {
	return func(p *Pipeline) { p.raster = r }
}

// WithConverter sets the recognition collaborator used by
// image_to_markdown and full_pipeline tasks.
func WithConverter(c FolderConverter) Option {
	return func(p *Pipeline) { p.convert = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New returns a pipeline. Collaborators a task type needs must be supplied
// before Processor is called for that type.
func New(cfg types.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		paths:        cfg.Paths,
		skipExisting: cfg.TaskManager.SkipExisting,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Scanners returns the item scanner for every task type.
func Scanners() map[task.Type]task.Scanner {
	return scan.Scanners()
}

// Needs reports which collaborators a task type uses.
func Needs(typ task.Type) (raster, convert bool) {
	switch typ {
	case task.TypePDFToImage:
		return true, false
	case task.TypeImageToMarkdown:
		return false, true
	case task.TypeFullPipeline:
		return true, true
	}
	return false, false
}

// Processor returns the callback for rec's task type. Setup problems that
// would fail every item (missing pdftoppm, an unwritable output root) are
// reported on the first item as fatal so the pass stops and records why.
func (p *Pipeline) Processor(rec *task.Record) (task.Processor, error) {
	needRaster, needConvert := Needs(rec.Type)
	if !needRaster && !needConvert {
		return nil, fmt.Errorf("%w: unknown task type %q", task.ErrInvalidInput, rec.Type)
	}
	if needRaster && p.raster == nil {
		return nil, fmt.Errorf("%w: %s needs a rasterizer", task.ErrInvalidInput, rec.Type)
	}
	if needConvert && p.convert == nil {
		return nil, fmt.Errorf("%w: %s needs a recognition backend", task.ErrInvalidInput, rec.Type)
	}

	ip := &itemProcessor{p: p, rec: rec}
	return task.ProcessorFunc(ip.process), nil
}

type itemProcessor struct {
	p   *Pipeline
	rec *task.Record

	once     sync.Once
	setupErr error
}

func (ip *itemProcessor) setup() error {
	ip.once.Do(func() {
		if needRaster, _ := Needs(ip.rec.Type); needRaster {
			if err := ip.p.raster.Available(); err != nil {
				ip.setupErr = fmt.Errorf("%w: %v", task.ErrFatal, err)
				return
			}
		}
		if err := os.MkdirAll(ip.rec.OutputPath, 0o755); err != nil {
			ip.setupErr = fmt.Errorf("%w: output root %s: %v", task.ErrFatal, ip.rec.OutputPath, err)
		}
	})
	return ip.setupErr
}

func (ip *itemProcessor) process(ctx context.Context, identity string) (string, error) {
	if err := ip.setup(); err != nil {
		return "", err
	}
	out := OutputPath(ip.rec.Type, identity, ip.rec.InputPath, ip.rec.OutputPath)
	log := ip.p.logger.With(zap.String("task_id", ip.rec.ID), zap.String("item", identity))

	if ip.p.skipExisting && outputExists(ip.rec.Type, out) {
		return out, fmt.Errorf("%w: %s exists", task.ErrSkip, out)
	}

	switch ip.rec.Type {
	case task.TypePDFToImage:
		pages, err := ip.p.raster.Convert(ctx, identity, out)
		if err != nil {
			return "", fmt.Errorf("rasterizing: %w", err)
		}
		log.Debug("pdf rasterized", zap.Int("pages", pages), zap.String("output", out))

	case task.TypeImageToMarkdown:
		pages, err := ip.p.convert.ConvertFolder(ctx, identity, out)
		if err != nil {
			return "", fmt.Errorf("recognizing: %w", err)
		}
		log.Debug("folder recognized", zap.Int("pages", pages), zap.String("output", out))

	case task.TypeFullPipeline:
		images := ip.p.ImageDir(identity)
		rendered, err := ip.p.raster.Convert(ctx, identity, images)
		if err != nil {
			return "", fmt.Errorf("rasterizing: %w", err)
		}
		pages, err := ip.p.convert.ConvertFolder(ctx, images, out)
		if err != nil {
			return "", fmt.Errorf("recognizing: %w", err)
		}
		log.Debug("pdf converted",
			zap.Int("rendered", rendered),
			zap.Int("pages", pages),
			zap.String("images", images),
			zap.String("output", out))
	}
	return out, nil
}

// ImageDir is where full_pipeline keeps the page images of pdfPath:
// <paths.image_output>/<parent dir name>/<stem>.
func (p *Pipeline) ImageDir(pdfPath string) string {
	parent := filepath.Base(filepath.Dir(pdfPath))
	return filepath.Join(p.paths.ImageOutput, parent, stem(pdfPath))
}

// OutputPath derives where an item's output goes.
//
//	pdf_to_image:      <out>/<rel dir>/<stem>/      (page images)
//	image_to_markdown: <out>/<parent>/<folder>.md   (full-width colons become "_")
//	full_pipeline:     <out>/<rel dir>/<stem>.md
//
// rel dir is the item's directory relative to the input root, or empty when
// the item lies outside it.
func OutputPath(typ task.Type, identity, inputRoot, outputRoot string) string {
	relDir := "."
	if rel, err := filepath.Rel(inputRoot, identity); err == nil && !strings.HasPrefix(rel, "..") {
		relDir = filepath.Dir(rel)
	}

	switch typ {
	case task.TypePDFToImage:
		return filepath.Join(outputRoot, relDir, stem(identity))
	case task.TypeImageToMarkdown:
		folder := colonSafe(filepath.Base(identity))
		parent := colonSafe(filepath.Base(filepath.Dir(identity)))
		return filepath.Join(outputRoot, parent, folder+".md")
	case task.TypeFullPipeline:
		return filepath.Join(outputRoot, relDir, stem(identity)+".md")
	}
	return filepath.Join(outputRoot, filepath.Base(identity))
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func colonSafe(name string) string {
	return strings.ReplaceAll(name, "：", "_")
}

// outputExists reports whether a previous run already produced out: a
// directory holding at least one JPEG for pdf_to_image, a non-empty file
// otherwise.
func outputExists(typ task.Type, out string) bool {
	if typ == task.TypePDFToImage {
		images, err := scan.JPEGs(out)
		return err == nil && len(images) > 0
	}
	info, err := os.Stat(out)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
