//go:build mage

// Package main contains Mage build targets for watchcat developer tooling.
// Implements: build, test, lint, and project setup targets.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const sampleConfig = `log:
  level: info
  format: console
store:
  path: watchcat.db
sources:
  - id: arxiv-ml
    kind: arxiv
    lookback: 72h
    arxiv:
      categories: [cs.LG]
    filter:
      field: title
      op: words
      value: graph neural
`

// Init creates the secrets directory and a starter watchcat.yaml when none exists.
func Init() error {
	if err := os.MkdirAll(".secrets", 0o700); err != nil {
		return fmt.Errorf("creating .secrets: %w", err)
	}
	fmt.Println("   .secrets/")
	if _, err := os.Stat("watchcat.yaml"); err == nil {
		fmt.Println("watchcat.yaml exists, leaving it unchanged.")
		return nil
	}
	if err := os.WriteFile("watchcat.yaml", []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("writing watchcat.yaml: %w", err)
	}
	fmt.Println("   watchcat.yaml")
	fmt.Println("Project initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "watchcat"
	cmdPkg  = "./cmd/watchcat"
)

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

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet over every package.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Check runs Lint and Test.
func Check() {
	mg.SerialDeps(Lint, Test)
}

// Stats prints project metrics: Go production/test LOC and Markdown word count.
func Stats() error {
	var st stats
	if err := filepath.WalkDir(".", st.visit); err != nil {
		return err
	}
	fmt.Printf("Lines of code (Go, production): %d\n", st.prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", st.testLines)
	fmt.Printf("Words (documentation):           %d\n", st.docWords)
	return nil
}

type stats struct {
	prodLines, testLines, docWords int
}

// visit counts non-blank Go lines and Markdown words, skipping the
// directories the go tool ignores (leading "_" or ".").
func (st *stats) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	if d.IsDir() {
		name := d.Name()
		if path != "." && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return nil
	}
	ext := filepath.Ext(path)
	if ext != ".go" && ext != ".md" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if ext == ".md" {
		st.docWords += len(strings.Fields(string(data)))
		return nil
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	if strings.HasSuffix(path, "_test.go") {
		st.testLines += n
	} else {
		st.prodLines += n
	}
	return nil
}
