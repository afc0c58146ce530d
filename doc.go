// Package phcore validates structured clinical documents against PH Core
// schema profiles before they are forwarded between healthcare systems.
//
// The engine compares a submitted document tree to one or more declarative
// profiles (a base type plus element constraints, extension slices, and
// terminology bindings) and produces an ordered list of diagnostic issues.
// The pass/fail verdict is derived from the issues: a document passes when
// no issue has error severity.
//
// # Quick Start
//
//	import (
//	    "github.com/ceciliomichael/wah4pc-phcore/pkg/engine"
//	    "github.com/ceciliomichael/wah4pc-phcore/pkg/loader"
//	    "github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
//	    "github.com/ceciliomichael/wah4pc-phcore/specs"
//	)
//
//	idx := registry.NewIndex()
//	set, err := loader.LoadFS(specs.FS(), specs.Dir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := idx.Build(set.Profiles, set.ValueSets, set.CodeSystems); err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.New(idx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := eng.Validate(ctx, documentJSON, engine.ModeRegular)
//	if !result.Valid() {
//	    for _, is := range result.Errors() {
//	        fmt.Println(is.Code, is.Details, is.Location)
//	    }
//	}
//
// # Traversal Policies
//
// Validation runs under one of two traversal policies sharing a single
// walker implementation:
//
//   - ModeRegular: fail fast, stopping at the first error issue
//   - ModeVerbose: exhaustive, reporting every detectable issue
//
// Regular-mode issues are always a prefix of verbose-mode issues for the
// same document and profile set.
//
// # Architecture
//
//   - registry: immutable schema index (profiles, value sets, code systems)
//     built once at startup and shared by every concurrent validation
//   - resolver: selects the profiles a document declares via meta.profile,
//     with base-type fallback
//   - walker: depth-first structural walk (cardinality, choice types,
//     slicing) in declared constraint order
//   - terminology: coded-value checks against bound value sets
//   - engine: aggregates issues across profiles and owns the policy
package phcore
