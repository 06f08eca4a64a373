// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scan discovers the work items of a task under an input root.
// Identities are paths joined onto the root as given, sorted so a task
// always processes its items in the same order.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/docflow/internal/task"
)

// PDFs returns every *.pdf file below root, matching the extension without
// regard to case.
func PDFs(ctx context.Context, root string) ([]string, error) {
	var out []string
	err := walk(ctx, root, func(path string, d fs.DirEntry) {
		if !d.IsDir() && hasExt(d.Name(), ".pdf") {
			out = append(out, path)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// ImageFolders returns every directory below root, root included, that
// directly contains at least one JPEG page image.
func ImageFolders(ctx context.Context, root string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	err := walk(ctx, root, func(path string, d fs.DirEntry) {
		if d.IsDir() || !isJPEG(d.Name()) {
			return
		}
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// JPEGs lists the JPEG files directly inside dir, unsorted.
func JPEGs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isJPEG(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// Scanners maps each task type to its scanner.
func Scanners() map[task.Type]task.Scanner {
	return map[task.Type]task.Scanner{
		task.TypePDFToImage:      task.ScannerFunc(PDFs),
		task.TypeImageToMarkdown: task.ScannerFunc(ImageFolders),
		task.TypeFullPipeline:    task.ScannerFunc(PDFs),
	}
}

func walk(ctx context.Context, root string, visit func(path string, d fs.DirEntry)) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("input path %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input path %s is not a directory: %w", root, fs.ErrNotExist)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() && path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		visit(path, d)
		return nil
	})
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

func isJPEG(name string) bool {
	return hasExt(name, ".jpg") || hasExt(name, ".jpeg")
}
