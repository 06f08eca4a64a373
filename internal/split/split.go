// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package split cuts a Markdown document into sections, either at headings
// or at paragraph boundaries under a length cap, merges sections that are
// too short, and saves each section as its own file next to a metadata
// index.
package split

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/docflow/pkg/types"
)

// Auto falls back to length splitting when header splitting yields fewer
// than minAutoSections or more than maxAutoSections sections.
const (
	minAutoSections = 2
	maxAutoSections = 50
)

// Section is one contiguous slice of the source document. Lines are
// zero-based and inclusive.
type Section struct {
	ID        int
	Title     string
	Level     int
	Content   string
	StartLine int
	EndLine   int
}

// Chars is the section length in characters, not bytes.
func (s Section) Chars() int {
	return utf8.RuneCountInString(s.Content)
}

// Split applies cfg.Method and then merges sections shorter than
// cfg.MinChars.
func Split(content string, cfg types.SplitConfig) ([]Section, error) {
	var sections []Section
	switch cfg.Method {
	case types.SplitHeaders:
		sections = ByHeaders(content, cfg.MaxHeaderLevel)
	case types.SplitLength:
		sections = ByLength(content, cfg.MaxChars)
	case types.SplitAuto, "":
		sections = ByHeaders(content, cfg.MaxHeaderLevel)
		if len(sections) < minAutoSections || len(sections) > maxAutoSections {
			sections = ByLength(content, cfg.MaxChars)
		}
	default:
		return nil, fmt.Errorf("unknown split method %q", cfg.Method)
	}
	if cfg.MinChars > 0 {
		sections = MergeSmall(sections, cfg.MinChars)
	}
	return sections, nil
}

// ByHeaders starts a new section at every ATX heading of level maxLevel or
// shallower. Text before the first heading becomes an "Introduction"
// section when it is not blank. Headings inside fenced code blocks are
// ignored.
func ByHeaders(content string, maxLevel int) []Section {
	lines := strings.Split(content, "\n")
	var sections []Section
	cur := Section{Title: "Introduction", StartLine: 0}
	var body []string
	inFence := false

	flush := func(end int) {
		text := strings.Join(body, "\n")
		if cur.Level == 0 && strings.TrimSpace(text) == "" {
			return
		}
		cur.Content = text
		cur.EndLine = end
		cur.ID = len(sections) + 1
		sections = append(sections, cur)
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if level, title, ok := heading(trimmed); ok && level <= maxLevel {
				flush(i - 1)
				cur = Section{Title: title, Level: level, StartLine: i}
				body = []string{line}
				continue
			}
		}
		body = append(body, line)
	}
	flush(len(lines) - 1)
	return sections
}

// heading parses "## Title". The marker must be followed by whitespace and
// a non-empty title.
func heading(line string) (level int, title string, ok bool) {
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) {
		return 0, "", false
	}
	if line[level] != ' ' && line[level] != '\t' {
		return 0, "", false
	}
	title = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[level:]), "#"))
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

// ByLength packs blank-line separated paragraphs into sections of at most
// maxChars characters. A single paragraph longer than maxChars becomes a
// section of its own.
func ByLength(content string, maxChars int) []Section {
	paragraphs := strings.Split(content, "\n\n")
	var sections []Section
	var cur []string
	curChars, curStart, line := 0, 0, 0

	flush := func(end int) {
		if len(cur) == 0 {
			return
		}
		n := len(sections) + 1
		sections = append(sections, Section{
			ID:        n,
			Title:     fmt.Sprintf("Section %d", n),
			Content:   strings.Join(cur, "\n\n"),
			StartLine: curStart,
			EndLine:   end,
		})
		cur, curChars = nil, 0
	}

	for _, para := range paragraphs {
		chars := utf8.RuneCountInString(para)
		lines := strings.Count(para, "\n") + 1
		if len(cur) > 0 && curChars+chars > maxChars {
			flush(line - 2)
		}
		if len(cur) == 0 {
			curStart = line
		}
		cur = append(cur, para)
		curChars += chars
		line += lines + 1
	}
	flush(line - 2)
	return sections
}

// MergeSmall folds every section shorter than minChars into the section
// that follows it, joining titles with " / ". IDs are renumbered.
func MergeSmall(sections []Section, minChars int) []Section {
	if len(sections) == 0 {
		return sections
	}
	merged := make([]Section, 0, len(sections))
	cur := sections[0]
	for _, next := range sections[1:] {
		if cur.Chars() < minChars {
			cur.Content += "\n\n" + next.Content
			cur.EndLine = next.EndLine
			if next.Title != "" {
				cur.Title += " / " + next.Title
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	for i := range merged {
		merged[i].ID = i + 1
	}
	return merged
}
