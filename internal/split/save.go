// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package split

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/docflow/internal/fsutil"
	"github.com/pdiddy/docflow/pkg/types"
)

const maxSlugRunes = 50

// DefaultOutputDir is created next to the input when no output is given.
const DefaultOutputDir = "split"

// Metadata indexes the section files written for one document.
type Metadata struct {
	BaseName      string         `json:"base_name"`
	TotalSections int            `json:"total_sections"`
	Sections      []SectionEntry `json:"sections"`
}

// SectionEntry describes one saved section file.
type SectionEntry struct {
	SectionID int    `json:"section_id"`
	Title     string `json:"title"`
	Filename  string `json:"filename"`
	Chars     int    `json:"chars"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

var nonSlug = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// Slug turns a title into a file name component of at most 50 characters.
func Slug(title string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "_"), "_")
	if r := []rune(s); len(r) > maxSlugRunes {
		s = strings.TrimRight(string(r[:maxSlugRunes]), "_")
	}
	if s == "" {
		return "section"
	}
	return s
}

// FileName is <base>_<NNN>_<slug>.md.
func FileName(base string, s Section) string {
	return fmt.Sprintf("%s_%03d_%s.md", base, s.ID, Slug(s.Title))
}

// Save writes every section to outDir and then <base>_metadata.json.
func Save(sections []Section, outDir, base string) (Metadata, error) {
	meta := Metadata{BaseName: base, TotalSections: len(sections), Sections: []SectionEntry{}}
	for _, s := range sections {
		name := FileName(base, s)
		if err := fsutil.WriteFile(filepath.Join(outDir, name), []byte(s.Content)); err != nil {
			return meta, fmt.Errorf("writing section %s: %w", name, err)
		}
		meta.Sections = append(meta.Sections, SectionEntry{
			SectionID: s.ID,
			Title:     s.Title,
			Filename:  name,
			Chars:     s.Chars(),
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		})
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return meta, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := fsutil.WriteFile(filepath.Join(outDir, base+"_metadata.json"), data); err != nil {
		return meta, fmt.Errorf("writing metadata: %w", err)
	}
	return meta, nil
}

// Splitter splits Markdown files on disk.
type Splitter struct {
	cfg    types.SplitConfig
	logger *zap.Logger
}

// New returns a Splitter using cfg.
func New(cfg types.SplitConfig, logger *zap.Logger) *Splitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Splitter{cfg: cfg, logger: logger}
}

// File splits one Markdown file into outDir, naming sections after the
// file's stem.
func (s *Splitter) File(path, outDir string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading %s: %w", path, err)
	}
	sections, err := Split(string(data), s.cfg)
	if err != nil {
		return Metadata{}, err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta, err := Save(sections, outDir, base)
	if err != nil {
		return meta, err
	}
	s.logger.Debug("split markdown",
		zap.String("file", path),
		zap.String("method", string(s.cfg.Method)),
		zap.Int("sections", meta.TotalSections))
	return meta, nil
}

// Inputs resolves input to the Markdown files to split and the output
// directory. A file input defaults to <dir>/split; a directory input is
// searched recursively, defaults to <input>/split, and never includes
// files already under the output directory.
func Inputs(ctx context.Context, input, output string) ([]string, string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, "", fmt.Errorf("input %s: %w", input, err)
	}
	if !info.IsDir() {
		if output == "" {
			output = filepath.Join(filepath.Dir(input), DefaultOutputDir)
		}
		return []string{input}, output, nil
	}
	if output == "" {
		output = filepath.Join(input, DefaultOutputDir)
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return nil, "", err
	}

	var files []string
	err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(path); abs == absOut {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("scanning %s: %w", input, err)
	}
	sort.Strings(files)
	return files, output, nil
}
