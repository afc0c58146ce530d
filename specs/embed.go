// Package specs embeds the PH Core conformance catalog the validator
// ships with: the profile StructureDefinitions, the extension
// definitions they slice on, a trimmed base Patient definition for
// fallback validation, and the terminology the profiles bind. Every
// value set referenced by a shipped binding is itself shipped, so a
// catalog built from this package resolves all of its own bindings.
//
// The files live under Dir inside the embedded tree and load through
// the loader package:
//
//	set, err := loader.LoadFS(specs.FS(), specs.Dir)
package specs

import (
	"embed"
	"fmt"
	"io/fs"
)

// Dir is the directory inside FS holding the artifact files.
const Dir = "phcore"

//go:embed phcore/*.json
var artifacts embed.FS

// FS returns the embedded artifact tree.
func FS() fs.FS {
	return artifacts
}

// Files lists the embedded artifact file names.
func Files() ([]string, error) {
	entries, err := artifacts.ReadDir(Dir)
	if err != nil {
		return nil, fmt.Errorf("specs: read %s: %w", Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// ReadFile returns one embedded artifact by file name.
func ReadFile(name string) ([]byte, error) {
	data, err := artifacts.ReadFile(Dir + "/" + name)
	if err != nil {
		return nil, fmt.Errorf("specs: read %s: %w", name, err)
	}
	return data, nil
}

// HasFile reports whether an artifact with the given file name is
// embedded.
func HasFile(name string) bool {
	_, err := artifacts.ReadFile(Dir + "/" + name)
	return err == nil
}
