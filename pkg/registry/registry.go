// Package registry holds the schema index: the immutable catalog of
// compiled profiles, value sets, and code systems that every validation
// run reads from.
//
// An Index is built exactly once. Before the build completes, every
// lookup fails with ErrNotBuilt so that a misconfigured service cannot
// silently validate against an empty catalog. After the build the index
// is frozen and safe for unsynchronized concurrent readers.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofhir/fhir/r4"
)

// Errors reported by Index operations.
var (
	// ErrNotBuilt is returned by every lookup before Build has
	// succeeded.
	ErrNotBuilt = errors.New("schema index not built")

	// ErrNotFound is wrapped by lookups whose canonical URL or type
	// name is not in the catalog.
	ErrNotFound = errors.New("not found in schema index")
)

// Index is the schema catalog. The zero value is not usable; call
// NewIndex.
type Index struct {
	buildOnce sync.Once
	buildErr  error
	built     atomic.Bool

	profiles    map[string]*ProfileDefinition // canonical URL, version-stripped
	byType      map[string]*ProfileDefinition // base type name
	valueSets   map[string]*ValueSetView
	codeSystems map[string]*CodeSystemView
}

// NewIndex creates an empty, unbuilt Index.
func NewIndex() *Index {
	return &Index{
		profiles:    make(map[string]*ProfileDefinition),
		byType:      make(map[string]*ProfileDefinition),
		valueSets:   make(map[string]*ValueSetView),
		codeSystems: make(map[string]*CodeSystemView),
	}
}

// Build compiles the given artifacts into the index. The first call
// decides the outcome; later calls change nothing and return the first
// call's error. Build validates every profile up front: malformed
// constraint data is a deployment defect and fails the whole build
// rather than surfacing per-document.
func (ix *Index) Build(profiles []*ProfileDefinition, valueSets []*r4.ValueSet, codeSystems []*r4.CodeSystem) error {
	ix.buildOnce.Do(func() {
		ix.buildErr = ix.build(profiles, valueSets, codeSystems)
		if ix.buildErr == nil {
			ix.built.Store(true)
		}
	})
	return ix.buildErr
}

func (ix *Index) build(profiles []*ProfileDefinition, valueSets []*r4.ValueSet, codeSystems []*r4.CodeSystem) error {
	// Code systems first so that whole-system value set includes can be
	// expanded against them.
	for _, cs := range codeSystems {
		view, err := compileCodeSystem(cs)
		if err != nil {
			return err
		}
		ix.codeSystems[view.url] = view
	}
	for _, vs := range valueSets {
		view, err := ix.compileValueSet(vs)
		if err != nil {
			return err
		}
		ix.valueSets[view.url] = view
	}
	for _, pd := range profiles {
		if pd == nil {
			return errors.New("registry: nil profile")
		}
		if err := pd.check(); err != nil {
			return fmt.Errorf("registry: profile %s: %w", pd.URL, err)
		}
		key := StripVersion(pd.URL)
		if _, dup := ix.profiles[key]; dup {
			return fmt.Errorf("registry: duplicate profile %s", key)
		}
		ix.profiles[key] = pd
		if pd.Derivation != DerivationConstraint {
			// First base definition for a type wins.
			if _, exists := ix.byType[pd.Type]; !exists {
				ix.byType[pd.Type] = pd
			}
		}
	}
	return nil
}

// Built reports whether a successful Build has completed.
func (ix *Index) Built() bool {
	return ix.built.Load()
}

// Profile returns the compiled profile for a canonical URL. A
// "|version" suffix on the URL is ignored.
func (ix *Index) Profile(url string) (*ProfileDefinition, error) {
	if !ix.built.Load() {
		return nil, ErrNotBuilt
	}
	pd, ok := ix.profiles[StripVersion(url)]
	if !ok {
		return nil, fmt.Errorf("profile %q: %w", url, ErrNotFound)
	}
	return pd, nil
}

// BaseType returns the base definition for a resource type name.
func (ix *Index) BaseType(name string) (*ProfileDefinition, error) {
	if !ix.built.Load() {
		return nil, ErrNotBuilt
	}
	pd, ok := ix.byType[name]
	if !ok {
		return nil, fmt.Errorf("type %q: %w", name, ErrNotFound)
	}
	return pd, nil
}

// ValueSet returns the compiled membership view of a value set.
func (ix *Index) ValueSet(url string) (*ValueSetView, error) {
	if !ix.built.Load() {
		return nil, ErrNotBuilt
	}
	vs, ok := ix.valueSets[StripVersion(url)]
	if !ok {
		return nil, fmt.Errorf("value set %q: %w", url, ErrNotFound)
	}
	return vs, nil
}

// CodeSystem returns the compiled concept view of a code system.
func (ix *Index) CodeSystem(url string) (*CodeSystemView, error) {
	if !ix.built.Load() {
		return nil, ErrNotBuilt
	}
	cs, ok := ix.codeSystems[StripVersion(url)]
	if !ok {
		return nil, fmt.Errorf("code system %q: %w", url, ErrNotFound)
	}
	return cs, nil
}

// ProfileInfo is a catalog listing entry.
type ProfileInfo struct {
	URL  string
	Name string
	Type string
}

// Profiles lists the compiled profiles sorted by canonical URL.
func (ix *Index) Profiles() ([]ProfileInfo, error) {
	if !ix.built.Load() {
		return nil, ErrNotBuilt
	}
	out := make([]ProfileInfo, 0, len(ix.profiles))
	for _, pd := range ix.profiles {
		out = append(out, ProfileInfo{URL: pd.URL, Name: pd.Name, Type: pd.Type})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// StripVersion removes a trailing "|version" from a canonical URL.
func StripVersion(url string) string {
	if i := strings.LastIndex(url, "|"); i >= 0 {
		return url[:i]
	}
	return url
}

// ValueSetView is the compiled membership table of one value set.
type ValueSetView struct {
	url     string
	codes   map[string]struct{} // "system|code" plus bare "code" keys
	systems map[string]struct{} // whole-system includes that could not be expanded
}

// URL returns the canonical URL of the value set.
func (v *ValueSetView) URL() string {
	return v.url
}

// Contains reports whether the coding is a member of the value set.
// A coding with an empty system matches on bare code alone.
func (v *ValueSetView) Contains(system, code string) bool {
	if system == "" {
		_, ok := v.codes[code]
		return ok
	}
	if _, ok := v.codes[system+"|"+code]; ok {
		return true
	}
	// An unexpandable whole-system include admits any code claiming
	// that system; the code system check still applies separately.
	_, ok := v.systems[system]
	return ok
}

// CodeSystemView is the compiled concept table of one code system.
type CodeSystemView struct {
	url   string
	codes map[string]struct{}
}

// URL returns the canonical URL of the code system.
func (v *CodeSystemView) URL() string {
	return v.url
}

// Has reports whether the code is defined by this code system.
func (v *CodeSystemView) Has(code string) bool {
	_, ok := v.codes[code]
	return ok
}

// compileCodeSystem flattens a CodeSystem's concept tree into a lookup
// set.
func compileCodeSystem(cs *r4.CodeSystem) (*CodeSystemView, error) {
	if cs == nil || cs.Url == nil || *cs.Url == "" {
		return nil, errors.New("registry: code system has no url")
	}
	view := &CodeSystemView{
		url:   StripVersion(*cs.Url),
		codes: make(map[string]struct{}),
	}
	collectConcepts(cs.Concept, view.codes)
	return view, nil
}

func collectConcepts(concepts []r4.CodeSystemConcept, into map[string]struct{}) {
	for i := range concepts {
		c := &concepts[i]
		if c.Code != nil && *c.Code != "" {
			into[*c.Code] = struct{}{}
		}
		if len(c.Concept) > 0 {
			collectConcepts(c.Concept, into)
		}
	}
}

// compileValueSet builds the membership table for a value set. An
// explicit expansion wins; otherwise the compose includes are expanded,
// copying whole code systems when the index knows them and falling back
// to a per-system wildcard when it does not.
func (ix *Index) compileValueSet(vs *r4.ValueSet) (*ValueSetView, error) {
	if vs == nil || vs.Url == nil || *vs.Url == "" {
		return nil, errors.New("registry: value set has no url")
	}
	view := &ValueSetView{
		url:     StripVersion(*vs.Url),
		codes:   make(map[string]struct{}),
		systems: make(map[string]struct{}),
	}

	if vs.Expansion != nil && len(vs.Expansion.Contains) > 0 {
		for i := range vs.Expansion.Contains {
			addExpansionContains(&vs.Expansion.Contains[i], view)
		}
		return view, nil
	}

	if vs.Compose == nil {
		return view, nil
	}
	for i := range vs.Compose.Include {
		include := &vs.Compose.Include[i]
		system := ""
		if include.System != nil {
			system = *include.System
		}
		if len(include.Concept) > 0 {
			for j := range include.Concept {
				concept := &include.Concept[j]
				if concept.Code == nil || *concept.Code == "" {
					continue
				}
				view.add(system, *concept.Code)
			}
			continue
		}
		if system == "" || len(include.Filter) > 0 {
			// Filtered includes need terminology server semantics the
			// index does not implement; leave them out rather than
			// guess.
			continue
		}
		if cs, ok := ix.codeSystems[StripVersion(system)]; ok {
			for code := range cs.codes {
				view.add(system, code)
			}
			continue
		}
		view.systems[system] = struct{}{}
	}
	return view, nil
}

func addExpansionContains(contains *r4.ValueSetExpansionContains, view *ValueSetView) {
	if contains.Code != nil && *contains.Code != "" {
		system := ""
		if contains.System != nil {
			system = *contains.System
		}
		view.add(system, *contains.Code)
	}
	for i := range contains.Contains {
		addExpansionContains(&contains.Contains[i], view)
	}
}

func (v *ValueSetView) add(system, code string) {
	if system != "" {
		v.codes[system+"|"+code] = struct{}{}
	}
	v.codes[code] = struct{}{}
}
