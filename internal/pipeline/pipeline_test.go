// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/internal/taskstore"
	"github.com/pdiddy/docflow/pkg/types"
)

type fakeRasterizer struct {
	unavailable error
	fail        error
	calls       [][2]string
}

func (f *fakeRasterizer) Available() error { return f.unavailable }

func (f *fakeRasterizer) Convert(_ context.Context, pdfPath, outDir string) (int, error) {
	f.calls = append(f.calls, [2]string{pdfPath, outDir})
	if f.fail != nil {
		return 0, f.fail
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, err
	}
	return 2, os.WriteFile(filepath.Join(outDir, "page_001.jpg"), []byte("jpeg"), 0o644)
}

type fakeConverter struct {
	fail  error
	calls [][2]string
}

func (f *fakeConverter) ConvertFolder(_ context.Context, folder, outPath string) (int, error) {
	f.calls = append(f.calls, [2]string{folder, outPath})
	if f.fail != nil {
		return 0, f.fail
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}
	return 1, os.WriteFile(outPath, []byte("# page"), 0o644)
}

func record(typ task.Type, in, out string) *task.Record {
	return &task.Record{ID: "t1", Type: typ, InputPath: in, OutputPath: out}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name     string
		typ      task.Type
		identity string
		want     string
	}{
		{"pdf at root", task.TypePDFToImage, "in/a.pdf", "out/a"},
		{"nested pdf", task.TypePDFToImage, "in/x/y/b.PDF", "out/x/y/b"},
		{"pdf outside root", task.TypePDFToImage, "/elsewhere/c.pdf", "out/c"},
		{"image folder", task.TypeImageToMarkdown, "in/reports/q1", "out/reports/q1.md"},
		{"full-width colon", task.TypeImageToMarkdown, "in/第一部分：总则/章节：一", "out/第一部分_总则/章节_一.md"},
		{"full pipeline", task.TypeFullPipeline, "in/x/doc.pdf", "out/x/doc.md"},
		{"full pipeline at root", task.TypeFullPipeline, "in/doc.pdf", "out/doc.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), OutputPath(tt.typ, filepath.FromSlash(tt.identity), "in", "out"))
		})
	}
}

func TestImageDir(t *testing.T) {
	p := New(types.Config{Paths: types.PathsConfig{ImageOutput: "images"}})
	assert.Equal(t, filepath.Join("images", "reports", "annual"), p.ImageDir(filepath.Join("pdfs", "reports", "annual.pdf")))
}

func TestProcessor_PDFToImage(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	raster := &fakeRasterizer{}
	p := New(types.Config{}, WithRasterizer(raster), WithLogger(zaptest.NewLogger(t)))

	proc, err := p.Processor(record(task.TypePDFToImage, filepath.Join(root, "in"), out))
	require.NoError(t, err)

	got, err := proc.Process(context.Background(), filepath.Join(root, "in", "sub", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "sub", "a"), got)
	require.Len(t, raster.calls, 1)
	assert.Equal(t, got, raster.calls[0][1])
}

func TestProcessor_ImageToMarkdown(t *testing.T) {
	root := t.TempDir()
	conv := &fakeConverter{}
	p := New(types.Config{}, WithConverter(conv))

	proc, err := p.Processor(record(task.TypeImageToMarkdown, filepath.Join(root, "images"), filepath.Join(root, "md")))
	require.NoError(t, err)

	got, err := proc.Process(context.Background(), filepath.Join(root, "images", "set", "doc"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "md", "set", "doc.md"), got)
	assert.FileExists(t, got)
}

func TestProcessor_FullPipeline(t *testing.T) {
	root := t.TempDir()
	raster := &fakeRasterizer{}
	conv := &fakeConverter{}
	cfg := types.Config{Paths: types.PathsConfig{ImageOutput: filepath.Join(root, "images")}}
	p := New(cfg, WithRasterizer(raster), WithConverter(conv))

	proc, err := p.Processor(record(task.TypeFullPipeline, filepath.Join(root, "pdfs"), filepath.Join(root, "md")))
	require.NoError(t, err)

	pdf := filepath.Join(root, "pdfs", "reports", "annual.pdf")
	got, err := proc.Process(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "md", "reports", "annual.md"), got)

	images := filepath.Join(root, "images", "reports", "annual")
	require.Len(t, raster.calls, 1)
	assert.Equal(t, [2]string{pdf, images}, raster.calls[0])
	require.Len(t, conv.calls, 1)
	assert.Equal(t, [2]string{images, got}, conv.calls[0])
}

func TestProcessor_FullPipelineStopsAfterRasterFailure(t *testing.T) {
	root := t.TempDir()
	raster := &fakeRasterizer{fail: errors.New("corrupt pdf")}
	conv := &fakeConverter{}
	p := New(types.Config{}, WithRasterizer(raster), WithConverter(conv))

	proc, err := p.Processor(record(task.TypeFullPipeline, root, filepath.Join(root, "md")))
	require.NoError(t, err)
	_, err = proc.Process(context.Background(), filepath.Join(root, "bad.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rasterizing")
	assert.NotErrorIs(t, err, task.ErrFatal)
	assert.Empty(t, conv.calls)
}

func TestProcessor_SkipExisting(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "md")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "set"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "set", "done.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "set", "empty.md"), nil, 0o644))

	conv := &fakeConverter{}
	cfg := types.Config{TaskManager: types.TaskManagerConfig{SkipExisting: true}}
	proc, err := New(cfg, WithConverter(conv)).Processor(record(task.TypeImageToMarkdown, root, out))
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), filepath.Join(root, "set", "done"))
	assert.ErrorIs(t, err, task.ErrSkip)

	_, err = proc.Process(context.Background(), filepath.Join(root, "set", "empty"))
	assert.NoError(t, err, "empty output is redone")
	assert.Len(t, conv.calls, 1)
}

func TestProcessor_SkipExistingImages(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "images")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "a", "page_001.jpg"), []byte("x"), 0o644))

	raster := &fakeRasterizer{}
	cfg := types.Config{TaskManager: types.TaskManagerConfig{SkipExisting: true}}
	proc, err := New(cfg, WithRasterizer(raster)).Processor(record(task.TypePDFToImage, root, out))
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), filepath.Join(root, "a.pdf"))
	assert.ErrorIs(t, err, task.ErrSkip)
	_, err = proc.Process(context.Background(), filepath.Join(root, "b.pdf"))
	assert.NoError(t, err)
	assert.Len(t, raster.calls, 1)
}

func TestProcessor_MissingToolIsFatal(t *testing.T) {
	root := t.TempDir()
	raster := &fakeRasterizer{unavailable: errors.New("pdftoppm not found")}
	proc, err := New(types.Config{}, WithRasterizer(raster)).Processor(record(task.TypePDFToImage, root, filepath.Join(root, "out")))
	require.NoError(t, err)

	_, err = proc.Process(context.Background(), filepath.Join(root, "a.pdf"))
	assert.ErrorIs(t, err, task.ErrFatal)
	assert.Empty(t, raster.calls)
}

func TestProcessor_UnwritableOutputIsFatal(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	proc, err := New(types.Config{}, WithConverter(&fakeConverter{})).
		Processor(record(task.TypeImageToMarkdown, root, filepath.Join(blocker, "out")))
	require.NoError(t, err)
	_, err = proc.Process(context.Background(), filepath.Join(root, "set"))
	assert.ErrorIs(t, err, task.ErrFatal)
}

func TestProcessor_MissingCollaborators(t *testing.T) {
	tests := []struct {
		name string
		typ  task.Type
		opts []Option
	}{
		{"pdf without rasterizer", task.TypePDFToImage, nil},
		{"markdown without converter", task.TypeImageToMarkdown, nil},
		{"full without converter", task.TypeFullPipeline, []Option{WithRasterizer(&fakeRasterizer{})}},
		{"unknown type", "ocr", []Option{WithRasterizer(&fakeRasterizer{}), WithConverter(&fakeConverter{})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(types.Config{}, tt.opts...).Processor(record(tt.typ, "in", "out"))
			assert.ErrorIs(t, err, task.ErrInvalidInput)
		})
	}
}

func TestPipelineDrivesManager(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "pdfs")
	require.NoError(t, os.MkdirAll(in, 0o755))
	for _, name := range []string{"a.pdf", "b.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(in, name), []byte("%PDF"), 0o644))
	}

	store, err := taskstore.NewFile(filepath.Join(root, "tasks"), "task_", nil)
	require.NoError(t, err)
	m := task.NewManager(store, Scanners(), task.WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()
	id, err := m.Create(ctx, task.TypePDFToImage, in, filepath.Join(root, "images"))
	require.NoError(t, err)

	rec, err := m.Get(ctx, id)
	require.NoError(t, err)
	proc, err := New(types.Config{}, WithRasterizer(&fakeRasterizer{})).Processor(rec)
	require.NoError(t, err)

	res, err := m.Start(ctx, id, proc, task.RunOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Succeeded)
	assert.DirExists(t, filepath.Join(root, "images", "a"))
}
