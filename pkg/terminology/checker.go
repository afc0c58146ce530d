// Package terminology checks coded values against the value set
// bindings a profile declares. The frozen schema index is the sole
// terminology source; nothing is fetched or expanded during a check.
package terminology

import (
	"fmt"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
)

// Checker validates coded values against value set bindings. It holds
// no per-call state and is safe for concurrent use.
type Checker struct {
	index *registry.Index
}

// New creates a Checker over a built schema index.
func New(index *registry.Index) *Checker {
	return &Checker{index: index}
}

// codedValue is one system/code pair extracted from an instance value.
type codedValue struct {
	system string
	code   string
	path   string
}

// Check validates one instance value against a binding, appending any
// findings to result. Bindings weaker than preferred are not checked.
func (c *Checker) Check(value any, binding *registry.Binding, path string, result *issue.Result) {
	if binding == nil || binding.ValueSet == "" {
		return
	}
	switch binding.Strength {
	case registry.BindingRequired, registry.BindingExtensible, registry.BindingPreferred:
	default:
		return
	}

	coded := extractCodedValues(value, path)
	if len(coded) == 0 {
		return
	}

	vs, err := c.index.ValueSet(binding.ValueSet)
	if err != nil {
		// An unresolvable value set can never fail the document, no
		// matter how strong the binding.
		for _, cv := range coded {
			result.AddWarningWithID(issue.DiagValueSetNotFound, map[string]any{
				"url":  binding.ValueSet,
				"code": cv.code,
			}, cv.path)
		}
		return
	}

	for _, cv := range coded {
		c.checkCoded(cv, vs, binding, result)
		if result.Halted() {
			return
		}
	}
}

// checkCoded resolves one coding against the code system catalog and
// the bound value set. A code absent from its own hosted code system is
// unknown outright; a known code outside the bound set is a membership
// violation.
func (c *Checker) checkCoded(cv codedValue, vs *registry.ValueSetView, binding *registry.Binding, result *issue.Result) {
	if cv.system != "" {
		if cs, err := c.index.CodeSystem(cv.system); err == nil && !cs.Has(cv.code) {
			c.report(result, issue.DiagUnknownCode, map[string]any{
				"code":     cv.code,
				"system":   cv.system,
				"strength": binding.Strength,
			}, cv.path, binding.Strength)
			return
		}
	}
	if !vs.Contains(cv.system, cv.code) {
		c.report(result, issue.DiagNotInValueSet, map[string]any{
			"token":    codeToken(cv.system, cv.code),
			"url":      vs.URL(),
			"strength": binding.Strength,
		}, cv.path, binding.Strength)
	}
}

// report maps binding strength to severity: required bindings fail,
// extensible and preferred bindings warn.
func (c *Checker) report(result *issue.Result, id issue.DiagnosticID, params map[string]any, path, strength string) {
	if strength == registry.BindingRequired {
		result.AddErrorWithID(id, params, path)
		return
	}
	result.AddWarningWithID(id, params, path)
}

func codeToken(system, code string) string {
	if system == "" {
		return code
	}
	return system + "|" + code
}

// extractCodedValues pulls the system/code pairs out of an instance
// value. Three shapes carry codes: a bare code string, a Coding object,
// and a CodeableConcept whose codings are taken in array order. Empty
// codes are a cardinality concern and are skipped here.
func extractCodedValues(value any, path string) []codedValue {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []codedValue{{code: v, path: path}}
	case map[string]any:
		if coding, ok := v["coding"]; ok {
			return extractCodingList(coding, path)
		}
		return extractCoding(v, path)
	case []any:
		var out []codedValue
		for i, item := range v {
			out = append(out, extractCodedValues(item, fmt.Sprintf("%s[%d]", path, i))...)
		}
		return out
	}
	return nil
}

func extractCodingList(coding any, path string) []codedValue {
	list, ok := coding.([]any)
	if !ok {
		return nil
	}
	var out []codedValue
	for i, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, extractCoding(m, fmt.Sprintf("%s.coding[%d]", path, i))...)
		}
	}
	return out
}

func extractCoding(m map[string]any, path string) []codedValue {
	code, _ := m["code"].(string)
	if code == "" {
		return nil
	}
	system, _ := m["system"].(string)
	return []codedValue{{system: system, code: code, path: path}}
}
