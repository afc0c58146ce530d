package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Binding strengths, in decreasing order of enforcement.
const (
	BindingRequired   = "required"
	BindingExtensible = "extensible"
	BindingPreferred  = "preferred"
	BindingExample    = "example"
)

// Slicing rules.
const (
	RulesOpen      = "open"
	RulesClosed    = "closed"
	RulesOpenAtEnd = "openAtEnd"
)

// Derivation values of a StructureDefinition.
const (
	DerivationSpecialization = "specialization"
	DerivationConstraint     = "constraint"
)

// DiscriminatorSelf is the discriminator path that refers to the sliced
// entry itself rather than a sub-element.
const DiscriminatorSelf = "$this"

// ProfileDefinition is a compiled profile: its canonical identity plus
// the element constraints in exactly the order the artifact declared
// them. The order is load-bearing; issue ordering follows it.
type ProfileDefinition struct {
	URL        string
	Name       string
	Type       string
	Derivation string

	Constraints []ElementConstraint
}

// ElementConstraint carries the rules for one element path. Rows that
// constrain a single slice use a ":sliceName" qualifier in Path and set
// SliceName.
type ElementConstraint struct {
	// Path is the dotted element path, e.g. "Patient.identifier" or
	// "Patient.extension:indigenousPeople.url".
	Path string

	// SliceName is set on slice rows.
	SliceName string

	// Min is the minimum number of occurrences.
	Min int

	// Max is the maximum number of occurrences, -1 for unbounded.
	Max int

	// Types lists the allowed types in declared order. For choice
	// elements the first matching entry wins.
	Types []TypeDescriptor

	// Binding ties the element to a value set, nil when unbound.
	Binding *Binding

	// Slicing is set on a sliced parent element.
	Slicing *SlicingSpec

	// Slice is set on slice rows: how entries are matched to the slice.
	Slice *SliceSpec

	// Fixed is the fixed[x] or pattern[x] literal declared on this row,
	// kept raw. Feeds slice discriminator derivation.
	Fixed json.RawMessage

	// FixedExact is true when Fixed came from fixed[x], which demands
	// exact equality; pattern[x] only demands containment.
	FixedExact bool
}

// TypeDescriptor names one allowed type for an element.
type TypeDescriptor struct {
	Code     string
	Profiles []string
}

// Binding ties an element to a value set with a strength.
type Binding struct {
	Strength string
	ValueSet string
}

// SlicingSpec describes how a repeating element is partitioned.
type SlicingSpec struct {
	Discriminators []Discriminator
	Rules          string
}

// Discriminator tells where the distinguishing value of each entry
// lives.
type Discriminator struct {
	Type string // value | pattern | exists | type | profile
	Path string // sub-path inside each entry, DiscriminatorSelf for the entry
}

// SliceSpec assigns entries to a named slice: an entry belongs to the
// slice when the value at Path matches the literal Value.
type SliceSpec struct {
	Path  string
	Value any
}

// structureDefinition is the wire view of a profile artifact. Only the
// parts the compiler needs are decoded; each element keeps its raw JSON
// so fixed[x] and pattern[x] can be extracted without hardcoding the
// full set of FHIR types.
type structureDefinition struct {
	ResourceType string       `json:"resourceType"`
	URL          string       `json:"url"`
	Name         string       `json:"name"`
	Kind         string       `json:"kind"`
	Type         string       `json:"type"`
	Derivation   string       `json:"derivation"`
	Snapshot     *elementList `json:"snapshot,omitempty"`
	Differential *elementList `json:"differential,omitempty"`
}

type elementList struct {
	Element []elementDefinition `json:"element"`
}

// UnmarshalJSON decodes the element array while preserving each
// element's raw JSON.
func (l *elementList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Element []json.RawMessage `json:"element"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Element = make([]elementDefinition, len(raw.Element))
	for i, elemRaw := range raw.Element {
		if err := json.Unmarshal(elemRaw, &l.Element[i]); err != nil {
			return err
		}
		l.Element[i].raw = elemRaw
	}
	return nil
}

type elementDefinition struct {
	ID        string      `json:"id"`
	Path      string      `json:"path"`
	SliceName string      `json:"sliceName"`
	Min       *int        `json:"min"`
	Max       string      `json:"max"`
	Type      []typeRef   `json:"type"`
	Binding   *Binding    `json:"binding"`
	Slicing   *slicingDef `json:"slicing"`

	raw json.RawMessage
}

type typeRef struct {
	Code          string   `json:"code"`
	Profile       []string `json:"profile"`
	TargetProfile []string `json:"targetProfile"`
}

type slicingDef struct {
	Discriminator []Discriminator `json:"discriminator"`
	Rules         string          `json:"rules"`
}

// ParseProfile compiles a StructureDefinition-shaped JSON artifact into
// a ProfileDefinition. The snapshot element list is preferred; artifacts
// that carry only a differential are compiled from that.
func ParseProfile(data []byte) (*ProfileDefinition, error) {
	var sd structureDefinition
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("registry: parse profile: %w", err)
	}
	if sd.ResourceType != "" && sd.ResourceType != "StructureDefinition" {
		return nil, fmt.Errorf("registry: expected StructureDefinition, got %q", sd.ResourceType)
	}
	if sd.URL == "" {
		return nil, errors.New("registry: profile has no url")
	}
	if sd.Type == "" {
		return nil, fmt.Errorf("registry: profile %s has no type", sd.URL)
	}

	var elements []elementDefinition
	switch {
	case sd.Snapshot != nil && len(sd.Snapshot.Element) > 0:
		elements = sd.Snapshot.Element
	case sd.Differential != nil && len(sd.Differential.Element) > 0:
		elements = sd.Differential.Element
	}

	pd := &ProfileDefinition{
		URL:        sd.URL,
		Name:       sd.Name,
		Type:       sd.Type,
		Derivation: sd.Derivation,
	}
	for i := range elements {
		ed := &elements[i]
		if ed.Path == "" || ed.Path == sd.Type {
			// Root element row carries no checkable constraint.
			continue
		}
		ec, err := compileElement(ed)
		if err != nil {
			return nil, fmt.Errorf("registry: profile %s: %w", sd.URL, err)
		}
		pd.Constraints = append(pd.Constraints, ec)
	}
	deriveSliceSpecs(pd)
	return pd, nil
}

// compileElement turns one ElementDefinition into a constraint row.
func compileElement(ed *elementDefinition) (ElementConstraint, error) {
	path := ed.ID
	if path == "" {
		path = ed.Path
		if ed.SliceName != "" {
			path += ":" + ed.SliceName
		}
	}

	min := 0
	if ed.Min != nil {
		min = *ed.Min
	}
	if min < 0 {
		return ElementConstraint{}, fmt.Errorf("element %s: negative min cardinality %d", path, min)
	}
	max, err := parseMaxCardinality(ed.Max, min)
	if err != nil {
		return ElementConstraint{}, fmt.Errorf("element %s: %w", path, err)
	}

	ec := ElementConstraint{
		Path:      path,
		SliceName: ed.SliceName,
		Min:       min,
		Max:       max,
	}
	for _, t := range ed.Type {
		ec.Types = append(ec.Types, TypeDescriptor{
			Code:     t.Code,
			Profiles: append([]string(nil), t.Profile...),
		})
	}
	if ed.Binding != nil && ed.Binding.ValueSet != "" {
		b := *ed.Binding
		ec.Binding = &b
	}
	if ed.Slicing != nil {
		spec := &SlicingSpec{Rules: ed.Slicing.Rules}
		if spec.Rules == "" {
			spec.Rules = RulesOpen
		}
		spec.Discriminators = append(spec.Discriminators, ed.Slicing.Discriminator...)
		ec.Slicing = spec
	}
	if v, _, ok := extractPrefixedValue(ed.raw, "fixed"); ok {
		ec.Fixed = v
		ec.FixedExact = true
	} else if v, _, ok := extractPrefixedValue(ed.raw, "pattern"); ok {
		ec.Fixed = v
	}
	return ec, nil
}

// parseMaxCardinality maps the textual max ("1", "*", "") to an int.
// An absent max means the base definition's bound applies, which this
// compiler does not resolve, so no upper bound is enforced.
func parseMaxCardinality(raw string, min int) (int, error) {
	if raw == "" || raw == "*" {
		return -1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid max cardinality %q", raw)
	}
	if n < min {
		return 0, fmt.Errorf("max cardinality %d below min %d", n, min)
	}
	return n, nil
}

// extractPrefixedValue finds a key with the given prefix in the raw
// JSON. Used for polymorphic properties like fixed[x] and pattern[x].
func extractPrefixedValue(raw json.RawMessage, prefix string) (json.RawMessage, string, bool) {
	if raw == nil {
		return nil, "", false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, "", false
	}
	for key, value := range obj {
		if strings.HasPrefix(key, prefix) {
			return value, strings.TrimPrefix(key, prefix), true
		}
	}
	return nil, "", false
}

// deriveSliceSpecs fills in SliceSpec for every slice row whose
// discriminator value can be derived from the profile itself. Three
// sources are tried, matching how profiles are authored in practice:
//
//  1. a fixed/pattern literal on the child row at the discriminator
//     sub-path (e.g. "Patient.identifier:philhealth.system" fixedUri);
//  2. a fixed/pattern literal on the slice row itself, descended along
//     the discriminator sub-path;
//  3. for extension slices discriminated on "url", the canonical URL of
//     the extension profile in the slice row's type[0].profile[0].
//
// Slice rows with no derivable literal keep a nil SliceSpec and never
// match entries.
func deriveSliceSpecs(pd *ProfileDefinition) {
	for i := range pd.Constraints {
		parent := &pd.Constraints[i]
		if parent.Slicing == nil || len(parent.Slicing.Discriminators) == 0 {
			continue
		}
		disc := parent.Slicing.Discriminators[0]
		for j := range pd.Constraints {
			slice := &pd.Constraints[j]
			if slice.SliceName == "" || slice.Slice != nil {
				continue
			}
			if slice.Path != parent.Path+":"+slice.SliceName {
				continue
			}
			if v, ok := deriveSliceValue(pd, slice, disc.Path); ok {
				slice.Slice = &SliceSpec{Path: disc.Path, Value: v}
			}
		}
	}
}

func deriveSliceValue(pd *ProfileDefinition, slice *ElementConstraint, discPath string) (any, bool) {
	// Child row carrying the literal at the discriminator sub-path.
	if discPath != DiscriminatorSelf {
		childPath := slice.Path + "." + discPath
		for k := range pd.Constraints {
			child := &pd.Constraints[k]
			if child.Path == childPath && child.Fixed != nil {
				return decodeLiteral(child.Fixed)
			}
		}
	}

	// Literal on the slice row itself.
	if slice.Fixed != nil {
		if discPath == DiscriminatorSelf {
			return decodeLiteral(slice.Fixed)
		}
		if v, ok := descendLiteral(slice.Fixed, discPath); ok {
			return v, true
		}
	}

	// Extension slices name their extension by canonical URL.
	if discPath == "url" && len(slice.Types) > 0 && len(slice.Types[0].Profiles) > 0 {
		if u := StripVersion(slice.Types[0].Profiles[0]); u != "" {
			return u, true
		}
	}
	return nil, false
}

// decodeLiteral turns raw JSON into a comparable Go value.
func decodeLiteral(raw json.RawMessage) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// descendLiteral walks a dotted sub-path inside a raw JSON value.
// Arrays are descended through their first entry, which is where
// profile authors put the discriminating literal.
func descendLiteral(raw json.RawMessage, path string) (any, bool) {
	v, ok := decodeLiteral(raw)
	if !ok {
		return nil, false
	}
	for _, seg := range strings.Split(path, ".") {
		if arr, isArr := v.([]any); isArr {
			if len(arr) == 0 {
				return nil, false
			}
			v = arr[0]
		}
		obj, isObj := v.(map[string]any)
		if !isObj {
			return nil, false
		}
		child, exists := obj[seg]
		if !exists {
			return nil, false
		}
		v = child
	}
	return v, true
}

// check validates a compiled profile before it enters the index.
func (pd *ProfileDefinition) check() error {
	if pd.URL == "" {
		return errors.New("missing url")
	}
	if pd.Type == "" {
		return errors.New("missing type")
	}
	for i := range pd.Constraints {
		ec := &pd.Constraints[i]
		if ec.Path == "" {
			return fmt.Errorf("constraint %d: missing path", i)
		}
		if ec.Min < 0 {
			return fmt.Errorf("constraint %s: negative min cardinality", ec.Path)
		}
		if ec.Max != -1 && ec.Max < ec.Min {
			return fmt.Errorf("constraint %s: max cardinality %d below min %d", ec.Path, ec.Max, ec.Min)
		}
		if ec.Slicing != nil {
			switch ec.Slicing.Rules {
			case RulesOpen, RulesClosed, RulesOpenAtEnd:
			default:
				return fmt.Errorf("constraint %s: unknown slicing rules %q", ec.Path, ec.Slicing.Rules)
			}
		}
	}
	return nil
}
