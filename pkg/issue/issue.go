// Package issue defines the validation issue model shared by every
// checking phase: severities, the issue code taxonomy, and the pooled
// Result collector that enforces the traversal policy.
package issue

import "sync"

// Severity is the severity level of a validation issue.
type Severity string

// Severity levels, from most to least severe.
const (
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Code classifies a validation issue.
type Code string

// Issue codes emitted by the engine.
const (
	CodeCardinalityMin   Code = "cardinality-min"
	CodeCardinalityMax   Code = "cardinality-max"
	CodeTypeMismatch     Code = "type-mismatch"
	CodeInvalidSlice     Code = "invalid-slice"
	CodeProfileNotFound  Code = "profile-not-found"
	CodeValueSetNotFound Code = "valueset-not-found"

	// CodeUnknownCode means the code does not exist in its code system;
	// CodeNotInValueSet means it exists but is outside the bound value set.
	CodeUnknownCode   Code = "unknown-code"
	CodeNotInValueSet Code = "not-in-valueset"

	CodeInformational Code = "informational"
)

// Mode selects the traversal policy for a validation run.
type Mode string

// Traversal modes.
const (
	// ModeRegular stops collecting at the first error-severity issue.
	ModeRegular Mode = "regular"
	// ModeVerbose collects every issue the engine can find.
	ModeVerbose Mode = "verbose"
)

// LocationRoot is the location used for issues about the document as a
// whole rather than a specific element.
const LocationRoot = "root"

// Issue is a single validation finding.
type Issue struct {
	// Severity indicates the severity level (error, warning, information).
	Severity Severity

	// Code classifies the finding.
	Code Code

	// Details is the human-readable description of the finding.
	Details string

	// Location is the dotted path to the offending element, with a
	// ":sliceName" qualifier for slice-level findings. LocationRoot
	// refers to the document itself.
	Location string

	// MessageID is the identifier of the catalog template that produced
	// Details, empty for free-form issues.
	MessageID DiagnosticID
}

// Result holds the issues of one validation run in the order the engine
// produced them. The verdict is always derived from the issue list;
// there is no stored boolean to drift out of sync.
type Result struct {
	Issues []Issue

	mode   Mode
	halted bool
}

// defaultIssueCapacity is the pre-allocated capacity for the Issues
// slice. Most runs produce fewer than 16 issues.
const defaultIssueCapacity = 16

// resultPool reduces allocations for high-throughput callers.
var resultPool = sync.Pool{
	New: func() any {
		return &Result{
			Issues: make([]Issue, 0, defaultIssueCapacity),
		}
	},
}

// NewResult creates an empty Result that applies the given traversal
// mode.
func NewResult(mode Mode) *Result {
	return &Result{
		Issues: make([]Issue, 0, defaultIssueCapacity),
		mode:   mode,
	}
}

// GetPooledResult returns a reset Result from the pool.
// Call ReleaseResult when done to return it.
func GetPooledResult(mode Mode) *Result {
	r, ok := resultPool.Get().(*Result)
	if !ok {
		r = &Result{Issues: make([]Issue, 0, defaultIssueCapacity)}
	}
	r.Issues = r.Issues[:0] // Reset length, keep capacity
	r.mode = mode
	r.halted = false
	return r
}

// ReleaseResult returns a Result to the pool for reuse.
// Do not use the Result after calling this function.
func ReleaseResult(r *Result) {
	if r == nil {
		return
	}
	// Clear references to allow GC
	for i := range r.Issues {
		r.Issues[i] = Issue{}
	}
	r.Issues = r.Issues[:0]
	r.mode = ""
	r.halted = false
	resultPool.Put(r)
}

// Mode reports the traversal mode the result was created with.
func (r *Result) Mode() Mode {
	return r.mode
}

// Halted reports whether fail-fast has triggered. Walkers must stop
// traversing once this returns true.
func (r *Result) Halted() bool {
	return r.halted
}

// AddIssue records an issue. Every Add helper funnels through here: in
// regular mode the first error-severity issue halts the run, and later
// calls record nothing.
func (r *Result) AddIssue(is Issue) {
	if r.halted {
		return
	}
	if is.Location == "" {
		is.Location = LocationRoot
	}
	r.Issues = append(r.Issues, is)
	if is.Severity == SeverityError && r.mode == ModeRegular {
		r.halted = true
	}
}

// AddError records an error-severity issue.
func (r *Result) AddError(code Code, details, location string) {
	r.AddIssue(Issue{
		Severity: SeverityError,
		Code:     code,
		Details:  details,
		Location: location,
	})
}

// AddWarning records a warning-severity issue.
func (r *Result) AddWarning(code Code, details, location string) {
	r.AddIssue(Issue{
		Severity: SeverityWarning,
		Code:     code,
		Details:  details,
		Location: location,
	})
}

// AddInfo records an information-severity issue.
func (r *Result) AddInfo(code Code, details, location string) {
	r.AddIssue(Issue{
		Severity: SeverityInformation,
		Code:     code,
		Details:  details,
		Location: location,
	})
}

// Valid reports whether the run produced no error-severity issues.
func (r *Result) Valid() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return false
		}
	}
	return true
}

// HasErrors returns true if there is at least one error-severity issue.
func (r *Result) HasErrors() bool {
	return !r.Valid()
}

// ErrorCount returns the number of error-severity issues.
func (r *Result) ErrorCount() int {
	count := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning-severity issues.
func (r *Result) WarningCount() int {
	count := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityWarning {
			count++
		}
	}
	return count
}

// InfoCount returns the number of information-severity issues.
func (r *Result) InfoCount() int {
	count := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityInformation {
			count++
		}
	}
	return count
}

// Errors returns the error-severity issues in recorded order.
func (r *Result) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity issues in recorded order.
func (r *Result) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r *Result) filter(sev Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

// Merge appends the issues of other, applying this result's halt policy
// to each one.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	for _, is := range other.Issues {
		r.AddIssue(is)
	}
}
