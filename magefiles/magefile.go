// Package main contains Mage build targets for docflow developer tooling.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "docflow"
	cmdPkg  = "./cmd/docflow"
)

// workDirs are the default paths and tasks directories from docflow.yaml.
var workDirs = []string{"pdfs", "images", "markdowns", "tasks"}

const sampleConfig = `model:
  backend: openai
  name: qwen-vl-max
  url: https://dashscope.aliyuncs.com/compatible-mode/v1
pdf2img:
  dpi: 200
  quality: 95
  thread_count: 4
img2markdown:
  delay_between_requests: 500ms
task_manager:
  tasks_dir: tasks
  store: file
  batch_size: 1
  max_attempts: 3
paths:
  pdf_input: pdfs
  image_output: images
  markdown_output: markdowns
`

const samplePrompts = `img2markdown:
  system: You convert scanned document pages into clean Markdown.
  user_prompt: ""
`

// Init creates the working directories and writes sample docflow.yaml and
// prompts.yaml when they do not exist yet.
func Init() error {
	for _, dir := range workDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	for name, content := range map[string]string{"docflow.yaml": sampleConfig, "prompts.yaml": samplePrompts} {
		if _, err := os.Stat(name); err == nil {
			continue
		}
		if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		fmt.Println("  ", name)
	}
	fmt.Println("Project initialized.")
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests. Firestore tests run only when
// FIRESTORE_EMULATOR_HOST is set.
func Test() error {
	return sh.RunV("go", "test", "./cmd/...", "./internal/...", "./pkg/...")
}

// Check vets the code and runs the tests.
func Check() error {
	if err := sh.RunV("go", "vet", "./cmd/...", "./internal/...", "./pkg/..."); err != nil {
		return err
	}
	mg.Deps(Test)
	return nil
}

// Clean removes build output.
func Clean() error {
	return os.RemoveAll(binDir)
}

// Stats prints non-blank Go lines for production code and tests.
func Stats() error {
	var prod, tests int
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		n, err := nonBlankLines(path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, "_test.go") {
			tests += n
		} else {
			prod += n
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	fmt.Printf("Lines of code (Go, production): %d\n", prod)
	fmt.Printf("Lines of code (Go, tests):      %d\n", tests)
	return nil
}

func nonBlankLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
