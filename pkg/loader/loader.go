// Package loader ingests conformance artifacts and prepares them for
// the schema index.
//
// Artifacts are JSON documents: StructureDefinition, ValueSet and
// CodeSystem resources, individually or wrapped in a Bundle. Anything
// else in a catalog directory (example instances, narrative pages) is
// counted and ignored.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/gofhir/fhir/r4"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/logger"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
)

// ErrUnsupportedResource marks an artifact whose resourceType the
// loader does not ingest.
var ErrUnsupportedResource = errors.New("loader: unsupported resource type")

// ResourceSet holds parsed artifacts ready for registry.Index.Build.
type ResourceSet struct {
	Profiles    []*registry.ProfileDefinition
	ValueSets   []*r4.ValueSet
	CodeSystems []*r4.CodeSystem

	// Skipped counts ignored resources by resourceType.
	Skipped map[string]int

	// Canonical URLs already ingested. Later artifacts with the same
	// URL are dropped so a catalog can safely overlap with itself.
	seen map[string]struct{}
}

func newResourceSet() *ResourceSet {
	return &ResourceSet{
		Skipped: make(map[string]int),
		seen:    make(map[string]struct{}),
	}
}

// Total returns the number of ingested artifacts.
func (s *ResourceSet) Total() int {
	return len(s.Profiles) + len(s.ValueSets) + len(s.CodeSystems)
}

// LoadResources parses a slice of artifact documents. A document that
// fails to parse is an error; documents of unsupported resource types
// are skipped and counted.
func LoadResources(documents [][]byte) (*ResourceSet, error) {
	set := newResourceSet()
	for i, doc := range documents {
		if err := set.add(doc); err != nil && !errors.Is(err, ErrUnsupportedResource) {
			return nil, fmt.Errorf("loader: artifact %d: %w", i, err)
		}
	}
	return set, nil
}

// LoadFS reads every .json file under dir. Files that fail to parse
// are logged and skipped, so one bad file cannot take down a whole
// catalog directory.
func LoadFS(fsys fs.FS, dir string) (*ResourceSet, error) {
	set := newResourceSet()
	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("loader: read %s: %w", path, err)
		}
		if err := set.add(data); err != nil && !errors.Is(err, ErrUnsupportedResource) {
			logger.Warn("skipping artifact %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("loaded %d artifacts from %s", set.Total(), dir)
	return set, nil
}

// add classifies one artifact by its resourceType and ingests it,
// expanding Bundles recursively.
func (s *ResourceSet) add(data []byte) error {
	resourceType, err := jsonparser.GetString(data, "resourceType")
	if err != nil {
		return fmt.Errorf("artifact has no resourceType: %w", err)
	}

	switch resourceType {
	case "StructureDefinition":
		if s.dropDuplicate(data) {
			return nil
		}
		pd, err := registry.ParseProfile(data)
		if err != nil {
			return err
		}
		s.Profiles = append(s.Profiles, pd)

	case "ValueSet":
		if s.dropDuplicate(data) {
			return nil
		}
		var vs r4.ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return fmt.Errorf("parse ValueSet: %w", err)
		}
		s.ValueSets = append(s.ValueSets, &vs)

	case "CodeSystem":
		if s.dropDuplicate(data) {
			return nil
		}
		var cs r4.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return fmt.Errorf("parse CodeSystem: %w", err)
		}
		s.CodeSystems = append(s.CodeSystems, &cs)

	case "Bundle":
		return s.addBundle(data)

	default:
		s.Skipped[resourceType]++
		return fmt.Errorf("%w: %s", ErrUnsupportedResource, resourceType)
	}
	return nil
}

// addBundle ingests every entry resource of a Bundle artifact. Entries
// without a resource and entries of unsupported types are skipped.
func (s *ResourceSet) addBundle(data []byte) error {
	var entryErr error
	_, err := jsonparser.ArrayEach(data, func(entry []byte, _ jsonparser.ValueType, _ int, _ error) {
		if entryErr != nil {
			return
		}
		resource, _, _, err := jsonparser.Get(entry, "resource")
		if err != nil {
			return
		}
		if err := s.add(resource); err != nil && !errors.Is(err, ErrUnsupportedResource) {
			entryErr = err
		}
	}, "entry")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return fmt.Errorf("parse Bundle entries: %w", err)
	}
	return entryErr
}

// dropDuplicate reports whether the artifact's canonical URL was seen
// before, registering it otherwise. Artifacts without a URL are never
// considered duplicates.
func (s *ResourceSet) dropDuplicate(data []byte) bool {
	url, err := jsonparser.GetString(data, "url")
	if err != nil || url == "" {
		return false
	}

	key := registry.StripVersion(url)
	if _, dup := s.seen[key]; dup {
		return true
	}
	s.seen[key] = struct{}{}
	return false
}
