//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pull builds the CLI and pulls every enabled source in watchcat.yaml.
func Pull() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "pull")
}

// Sources builds the CLI and lists the configured sources with their compiled filters.
func Sources() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "sources", "--plan")
}
