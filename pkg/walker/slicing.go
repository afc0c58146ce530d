package walker

import (
	"strings"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
)

// slices partitions the collected entries across the declared slices
// and enforces per-slice cardinality, the closed rule, and each
// slice's own child constraints.
//
// Every entry is assigned to the first slice, in declared order, whose
// discriminator literal it matches. Unmatched entries are permitted
// under open slicing and rejected under closed slicing; openAtEnd is
// treated as open because entry ordering is not checked.
func (r *walkRun) slices(node *planNode, vals []collectedValue, basePath string) error {
	rules := registry.RulesOpen
	if node.constraint != nil && node.constraint.Slicing != nil {
		rules = node.constraint.Slicing.Rules
	}

	counts := make([]int, len(node.slices))
	members := make([][]collectedValue, len(node.slices))
	for i := range vals {
		cv := &vals[i]
		matched := -1
		for s, sl := range node.slices {
			if sliceMatches(sl.constraint, cv.value) {
				matched = s
				break
			}
		}
		if matched >= 0 {
			counts[matched]++
			members[matched] = append(members[matched], *cv)
			continue
		}
		if rules == registry.RulesClosed {
			r.result.AddErrorWithID(issue.DiagSlicingClosed, map[string]any{
				"path": cv.path,
			}, cv.path)
			if r.result.Halted() {
				return nil
			}
		}
	}

	for s, sl := range node.slices {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if r.result.Halted() {
			return nil
		}
		slicePath := basePath + ":" + sl.sliceName
		if ec := sl.constraint; ec != nil {
			if ec.Min > 0 && counts[s] < ec.Min {
				r.result.AddErrorWithID(issue.DiagSliceCardinalityMin, map[string]any{
					"slice": sl.sliceName, "path": basePath, "min": ec.Min, "count": counts[s],
				}, slicePath)
			}
			if ec.Max >= 0 && counts[s] > ec.Max {
				r.result.AddErrorWithID(issue.DiagSliceCardinalityMax, map[string]any{
					"slice": sl.sliceName, "path": basePath, "max": ec.Max, "count": counts[s],
				}, slicePath)
			}
		}
		for i := range members[s] {
			if r.result.Halted() {
				return nil
			}
			if err := r.value(sl, &members[s][i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// sliceMatches reports whether an entry belongs to the slice. Slices
// with no derivable discriminator literal never match.
func sliceMatches(ec *registry.ElementConstraint, value any) bool {
	if ec == nil || ec.Slice == nil {
		return false
	}
	return discriminatorMatches(value, ec.Slice.Path, ec.Slice.Value)
}

// discriminatorMatches resolves the discriminator sub-path inside an
// entry and compares what it finds with the slice literal. A step over
// an array matches when any of its elements matches.
func discriminatorMatches(value any, path string, want any) bool {
	if path == registry.DiscriminatorSelf || path == "" {
		return matchesPattern(value, want)
	}
	seg, rest, _ := strings.Cut(path, ".")
	switch v := value.(type) {
	case map[string]any:
		child, ok := v[seg]
		if !ok {
			return false
		}
		if rest == "" {
			return discriminatorLeafMatches(child, want)
		}
		return discriminatorMatches(child, rest, want)
	case []any:
		for _, item := range v {
			if discriminatorMatches(item, path, want) {
				return true
			}
		}
	}
	return false
}

func discriminatorLeafMatches(got, want any) bool {
	if arr, ok := got.([]any); ok {
		for _, item := range arr {
			if discriminatorLeafMatches(item, want) {
				return true
			}
		}
		return false
	}
	if _, isObj := want.(map[string]any); isObj {
		return matchesPattern(got, want)
	}
	return literalEqual(got, want)
}
