// Package walker implements the structural traversal of a document
// against one compiled profile: a single depth-first pass over the
// profile's constraints in declared order, covering cardinality, type
// shape, fixed values, slicing, and terminology dispatch.
//
// The traversal order is the contract: issues come out in the order the
// profile declares its constraints, so a fail-fast run produces a
// prefix of the exhaustive run over the same document.
package walker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
)

// planCacheSize bounds the per-profile traversal plan cache.
const planCacheSize = 128

// CodeChecker validates an instance value against a terminology
// binding. The walker dispatches it inline so terminology issues keep
// their place in the declared constraint order.
type CodeChecker interface {
	Check(value any, binding *registry.Binding, path string, result *issue.Result)
}

// Walker drives profile traversals. It is safe for concurrent use; the
// plan cache is internally synchronized.
type Walker struct {
	codes CodeChecker
	plans *lru.Cache[string, *walkPlan]
}

// New creates a Walker. checker may be nil, which disables terminology
// checks.
func New(checker CodeChecker) *Walker {
	plans, _ := lru.New[string, *walkPlan](planCacheSize)
	return &Walker{codes: checker, plans: plans}
}

// Walk validates a decoded document against one profile, appending
// issues to result. The only error it returns is ctx's; validation
// findings always land in result.
func (w *Walker) Walk(ctx context.Context, doc map[string]any, pd *registry.ProfileDefinition, result *issue.Result) error {
	plan := w.planFor(pd)
	run := &walkRun{walker: w, ctx: ctx, result: result}

	rt, _ := doc["resourceType"].(string)
	if rt != plan.resourceType {
		result.AddErrorWithID(issue.DiagResourceTypeMismatch, map[string]any{
			"actual":   rt,
			"expected": plan.resourceType,
		}, issue.LocationRoot)
	}
	return run.children(plan.root, doc, plan.resourceType)
}

func (w *Walker) planFor(pd *registry.ProfileDefinition) *walkPlan {
	if plan, ok := w.plans.Get(pd.URL); ok {
		return plan
	}
	plan := buildPlan(pd)
	w.plans.Add(pd.URL, plan)
	return plan
}

// walkPlan is the compiled traversal tree for one profile.
type walkPlan struct {
	resourceType string
	root         *planNode
}

// planNode is one declared element. Children and slices keep the order
// the profile declared them in; that order drives issue order.
type planNode struct {
	name      string // element name within its parent, may end in "[x]"
	sliceName string // set on slice nodes

	constraint *registry.ElementConstraint
	fixed      any // decoded Fixed literal, nil when absent

	children []*planNode
	slices   []*planNode
}

func (n *planNode) findChild(name string) *planNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *planNode) findSlice(sliceName string) *planNode {
	for _, s := range n.slices {
		if s.sliceName == sliceName {
			return s
		}
	}
	return nil
}

// buildPlan compiles the flat constraint list into a tree. Paths that
// mention intermediate elements without their own constraint row get
// bare pass-through nodes.
func buildPlan(pd *registry.ProfileDefinition) *walkPlan {
	plan := &walkPlan{
		resourceType: pd.Type,
		root:         &planNode{name: pd.Type},
	}
	for i := range pd.Constraints {
		plan.attach(&pd.Constraints[i])
	}
	return plan
}

func (p *walkPlan) attach(ec *registry.ElementConstraint) {
	segs := strings.Split(ec.Path, ".")
	if len(segs) < 2 || segs[0] != p.resourceType {
		// Nothing in the document tree to anchor this row to.
		return
	}
	node := p.root
	for _, seg := range segs[1:] {
		name, sliceName, _ := strings.Cut(seg, ":")
		child := node.findChild(name)
		if child == nil {
			child = &planNode{name: name}
			node.children = append(node.children, child)
		}
		if sliceName == "" {
			node = child
			continue
		}
		sl := child.findSlice(sliceName)
		if sl == nil {
			sl = &planNode{name: name, sliceName: sliceName}
			child.slices = append(child.slices, sl)
		}
		node = sl
	}
	if node.constraint == nil {
		node.constraint = ec
		if ec.Fixed != nil {
			var v any
			if err := json.Unmarshal(ec.Fixed, &v); err == nil {
				node.fixed = v
			}
		}
	}
}

// collectedValue is one instance value gathered for a declared element.
type collectedValue struct {
	value    any
	path     string
	typeCode string // the type a choice key claims, "" otherwise
}

// walkRun is the per-call traversal state.
type walkRun struct {
	walker *Walker
	ctx    context.Context
	result *issue.Result
}

func (r *walkRun) children(node *planNode, data map[string]any, path string) error {
	for _, child := range node.children {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if r.result.Halted() {
			return nil
		}
		if err := r.element(child, data, path); err != nil {
			return err
		}
	}
	return nil
}

// element runs every check a declared element carries: cardinality over
// the values actually present, then the per-value checks, then slicing.
func (r *walkRun) element(node *planNode, data map[string]any, parentPath string) error {
	vals := collectValues(data, node, parentPath)
	basePath := parentPath + "." + strings.TrimSuffix(node.name, "[x]")

	if ec := node.constraint; ec != nil {
		if ec.Min > 0 && len(vals) < ec.Min {
			r.result.AddErrorWithID(issue.DiagCardinalityMin, map[string]any{
				"path": basePath, "min": ec.Min, "count": len(vals),
			}, basePath)
		}
		if ec.Max >= 0 && len(vals) > ec.Max {
			r.result.AddErrorWithID(issue.DiagCardinalityMax, map[string]any{
				"path": basePath, "max": ec.Max, "count": len(vals),
			}, basePath)
		}
	}

	for i := range vals {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if r.result.Halted() {
			return nil
		}
		if err := r.value(node, &vals[i]); err != nil {
			return err
		}
	}

	if len(node.slices) > 0 {
		return r.slices(node, vals, basePath)
	}
	return nil
}

// value checks one instance value against the element's constraint and
// recurses into declared child elements.
func (r *walkRun) value(node *planNode, cv *collectedValue) error {
	if ec := node.constraint; ec != nil {
		r.checkTypes(node, cv)
		if r.result.Halted() {
			return nil
		}
		// Slice rows carry their discriminator literal in Fixed; entries
		// already matched it, so only plain rows enforce it here.
		if node.fixed != nil && node.sliceName == "" && ec.Slicing == nil {
			r.checkFixed(node, cv)
			if r.result.Halted() {
				return nil
			}
		}
		if ec.Binding != nil && r.walker.codes != nil {
			r.walker.codes.Check(cv.value, ec.Binding, cv.path, r.result)
			if r.result.Halted() {
				return nil
			}
		}
	}
	if obj, ok := cv.value.(map[string]any); ok && len(node.children) > 0 {
		return r.children(node, obj, cv.path)
	}
	return nil
}

// checkTypes applies the declared type list in order; the first match
// wins and no issue is raised.
func (r *walkRun) checkTypes(node *planNode, cv *collectedValue) {
	ec := node.constraint
	if len(ec.Types) == 0 {
		return
	}
	if cv.typeCode != "" {
		// A choice key names its own type.
		if !typeMatches(cv.value, cv.typeCode) {
			r.result.AddErrorWithID(issue.DiagTypeMismatch, map[string]any{
				"path": cv.path, "allowed": cv.typeCode,
			}, cv.path)
		}
		return
	}
	for _, t := range ec.Types {
		if typeMatches(cv.value, t.Code) {
			return
		}
	}
	allowed := make([]string, len(ec.Types))
	for i, t := range ec.Types {
		allowed[i] = t.Code
	}
	r.result.AddErrorWithID(issue.DiagTypeMismatch, map[string]any{
		"path": cv.path, "allowed": strings.Join(allowed, ", "),
	}, cv.path)
}

func (r *walkRun) checkFixed(node *planNode, cv *collectedValue) {
	ec := node.constraint
	kind := "pattern"
	match := matchesPattern(cv.value, node.fixed)
	if ec.FixedExact {
		kind = "fixed"
		match = matchesFixed(cv.value, node.fixed)
	}
	if !match {
		r.result.AddErrorWithID(issue.DiagFixedMismatch, map[string]any{
			"path": cv.path, "kind": kind,
		}, cv.path)
	}
}

// collectValues gathers the instance values for one declared element.
// Arrays are flattened with indexed paths. Choice elements probe the
// declared types in order, accepting the typed key casing FHIR JSON
// uses (deceased[x] with boolean -> deceasedBoolean).
func collectValues(data map[string]any, node *planNode, parentPath string) []collectedValue {
	if strings.HasSuffix(node.name, "[x]") {
		return collectChoiceValues(data, node, parentPath)
	}
	raw, ok := data[node.name]
	if !ok {
		return nil
	}
	return flattenValue(raw, parentPath+"."+node.name, "")
}

func collectChoiceValues(data map[string]any, node *planNode, parentPath string) []collectedValue {
	base := strings.TrimSuffix(node.name, "[x]")
	var types []registry.TypeDescriptor
	if node.constraint != nil {
		types = node.constraint.Types
	}
	var out []collectedValue
	for _, t := range types {
		want := base + upperFirst(t.Code)
		for key, raw := range data {
			if strings.EqualFold(key, want) {
				out = append(out, flattenValue(raw, parentPath+"."+key, t.Code)...)
			}
		}
	}
	return out
}

func flattenValue(raw any, path, typeCode string) []collectedValue {
	if arr, ok := raw.([]any); ok {
		out := make([]collectedValue, 0, len(arr))
		for i, item := range arr {
			if item == nil {
				continue
			}
			out = append(out, collectedValue{
				value:    item,
				path:     fmt.Sprintf("%s[%d]", path, i),
				typeCode: typeCode,
			})
		}
		return out
	}
	if raw == nil {
		return nil
	}
	return []collectedValue{{value: raw, path: path, typeCode: typeCode}}
}
