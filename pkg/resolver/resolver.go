// Package resolver maps a document's claimed profiles onto the schema
// index, deciding which compiled definitions a validation run walks.
package resolver

import (
	"errors"
	"fmt"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
)

// Resolver resolves meta.profile claims against a built schema index.
type Resolver struct {
	index *registry.Index
}

// New creates a Resolver over a built schema index.
func New(index *registry.Index) *Resolver {
	return &Resolver{index: index}
}

// Resolution is the outcome of profile resolution for one document.
type Resolution struct {
	// Profiles are the definitions to walk, in the order the document
	// declared them.
	Profiles []*registry.ProfileDefinition

	// BaseFallback is true when Profiles holds the base type definition
	// instead of claimed profiles.
	BaseFallback bool

	// ClaimedNone is true when the document declared no profiles at all.
	ClaimedNone bool
}

// ExtractProfiles returns the profile URLs a document claims in
// meta.profile, in declaration order. Entries that are not non-empty
// strings are skipped.
func ExtractProfiles(doc map[string]any) []string {
	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		return nil
	}
	claimed, ok := meta["profile"].([]any)
	if !ok {
		return nil
	}
	profiles := make([]string, 0, len(claimed))
	for _, p := range claimed {
		if url, ok := p.(string); ok && url != "" {
			profiles = append(profiles, url)
		}
	}
	return profiles
}

// Resolve maps the document's claimed profiles to compiled definitions.
// Claims the index cannot resolve warn and are dropped. When no claim
// survives, the base type definition for the document's resourceType
// takes their place; when that does not exist either, Profiles comes
// back empty and only generic structural checks apply. The only error
// Resolve returns is ErrNotBuilt from an index that was never built.
func (r *Resolver) Resolve(doc map[string]any, result *issue.Result) (Resolution, error) {
	claimed := ExtractProfiles(doc)
	res := Resolution{ClaimedNone: len(claimed) == 0}
	resourceType, _ := doc["resourceType"].(string)

	for i, url := range claimed {
		pd, err := r.index.Profile(url)
		if err != nil {
			if !errors.Is(err, registry.ErrNotFound) {
				return Resolution{}, err
			}
			result.AddWarningWithID(issue.DiagProfileNotFound, map[string]any{
				"url": url,
			}, claimLocation(resourceType, i))
			continue
		}
		res.Profiles = append(res.Profiles, pd)
	}
	if len(res.Profiles) > 0 {
		return res, nil
	}
	if resourceType == "" {
		return res, nil
	}

	base, err := r.index.BaseType(resourceType)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			return Resolution{}, err
		}
		return res, nil
	}
	res.Profiles = append(res.Profiles, base)
	res.BaseFallback = true
	return res, nil
}

func claimLocation(resourceType string, i int) string {
	loc := fmt.Sprintf("meta.profile[%d]", i)
	if resourceType == "" {
		return loc
	}
	return resourceType + "." + loc
}
