package issue

import (
	"fmt"
	"strings"
)

// DiagnosticID identifies a specific diagnostic message template.
type DiagnosticID string

// Diagnostic IDs for document-level checks.
const (
	DiagDocumentInvalid      DiagnosticID = "DOCUMENT_INVALID"
	DiagDocumentNoType       DiagnosticID = "DOCUMENT_NO_TYPE"
	DiagResourceTypeMismatch DiagnosticID = "RESOURCE_TYPE_MISMATCH"
)

// Diagnostic IDs for cardinality checks.
const (
	DiagCardinalityMin      DiagnosticID = "CARDINALITY_MIN"
	DiagCardinalityMax      DiagnosticID = "CARDINALITY_MAX"
	DiagSliceCardinalityMin DiagnosticID = "SLICE_CARDINALITY_MIN"
	DiagSliceCardinalityMax DiagnosticID = "SLICE_CARDINALITY_MAX"
)

// Diagnostic IDs for type and slicing checks.
const (
	DiagTypeMismatch  DiagnosticID = "TYPE_MISMATCH"
	DiagFixedMismatch DiagnosticID = "FIXED_MISMATCH"
	DiagSlicingClosed DiagnosticID = "SLICING_CLOSED"
)

// Diagnostic IDs for profile resolution.
const (
	DiagProfileNotFound  DiagnosticID = "PROFILE_NOT_FOUND"
	DiagNoProfileApplied DiagnosticID = "NO_PROFILE_APPLIED"
)

// Diagnostic IDs for terminology checks.
const (
	DiagValueSetNotFound DiagnosticID = "VALUESET_NOT_FOUND"
	DiagUnknownCode      DiagnosticID = "UNKNOWN_CODE"
	DiagNotInValueSet    DiagnosticID = "NOT_IN_VALUESET"
)

// Diagnostic IDs for the run summary.
const (
	DiagValidationPassed DiagnosticID = "VALIDATION_PASSED"
)

// DiagnosticTemplate defines the structure for a diagnostic message.
// Severity and Code are the canonical values for the ID; helpers that
// pick severity by binding strength may override Severity.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Severity Severity
	Code     Code
	Template string
}

// diagnosticTemplates maps diagnostic IDs to their templates.
// Templates use {placeholder} syntax for variable substitution.
var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	// Document level
	DiagDocumentInvalid: {
		Severity: SeverityError,
		Code:     CodeTypeMismatch,
		Template: "Document is not parseable JSON: {error}",
	},
	DiagDocumentNoType: {
		Severity: SeverityError,
		Code:     CodeTypeMismatch,
		Template: "Document has no 'resourceType' property",
	},
	DiagResourceTypeMismatch: {
		Severity: SeverityError,
		Code:     CodeTypeMismatch,
		Template: "Resource type '{actual}' does not match expected type '{expected}'",
	},

	// Cardinality
	DiagCardinalityMin: {
		Severity: SeverityError,
		Code:     CodeCardinalityMin,
		Template: "Minimum cardinality of '{path}' is {min}, but found {count}",
	},
	DiagCardinalityMax: {
		Severity: SeverityError,
		Code:     CodeCardinalityMax,
		Template: "Maximum cardinality of '{path}' is {max}, but found {count}",
	},
	DiagSliceCardinalityMin: {
		Severity: SeverityError,
		Code:     CodeCardinalityMin,
		Template: "Slice '{slice}' of '{path}' requires minimum {min} occurrence(s), found {count}",
	},
	DiagSliceCardinalityMax: {
		Severity: SeverityError,
		Code:     CodeCardinalityMax,
		Template: "Slice '{slice}' of '{path}' allows maximum {max} occurrence(s), found {count}",
	},

	// Types and slicing
	DiagTypeMismatch: {
		Severity: SeverityError,
		Code:     CodeTypeMismatch,
		Template: "Value at '{path}' does not match any declared type: {allowed}",
	},
	DiagFixedMismatch: {
		Severity: SeverityError,
		Code:     CodeTypeMismatch,
		Template: "Value at '{path}' does not match the {kind} value declared by the profile",
	},
	DiagSlicingClosed: {
		Severity: SeverityError,
		Code:     CodeInvalidSlice,
		Template: "Element at '{path}' does not match any slice and the slicing is closed",
	},

	// Profile resolution
	DiagProfileNotFound: {
		Severity: SeverityWarning,
		Code:     CodeProfileNotFound,
		Template: "Profile '{url}' was not found in the schema index",
	},
	DiagNoProfileApplied: {
		Severity: SeverityInformation,
		Code:     CodeInformational,
		Template: "No profile was applied to resource type '{type}'; only generic structural checks were performed",
	},

	// Terminology
	DiagValueSetNotFound: {
		Severity: SeverityWarning,
		Code:     CodeValueSetNotFound,
		Template: "ValueSet '{url}' was not found; code '{code}' cannot be validated",
	},
	DiagUnknownCode: {
		Severity: SeverityError,
		Code:     CodeUnknownCode,
		Template: "Unknown code '{code}' in system '{system}' ({strength})",
	},
	DiagNotInValueSet: {
		Severity: SeverityError,
		Code:     CodeNotInValueSet,
		Template: "Code '{token}' is not in value set '{url}' ({strength})",
	},

	// Run summary
	DiagValidationPassed: {
		Severity: SeverityInformation,
		Code:     CodeInformational,
		Template: "Validation passed: no issues found",
	},
}

// FormatDiagnostic builds an Issue from a catalog template.
// The second return value is false when the ID is not in the catalog.
func FormatDiagnostic(id DiagnosticID, params map[string]any, location string) (Issue, bool) {
	tpl, ok := diagnosticTemplates[id]
	if !ok {
		return Issue{}, false
	}
	return Issue{
		Severity:  tpl.Severity,
		Code:      tpl.Code,
		Details:   formatTemplate(tpl.Template, params),
		Location:  location,
		MessageID: id,
	}, true
}

// formatTemplate substitutes {key} placeholders with parameter values.
func formatTemplate(template string, params map[string]any) string {
	result := template
	for key, value := range params {
		result = strings.ReplaceAll(result, "{"+key+"}", fmt.Sprintf("%v", value))
	}
	return result
}

// AddIssueWithID records an issue using the template's canonical
// severity.
func (r *Result) AddIssueWithID(id DiagnosticID, params map[string]any, location string) {
	if is, ok := FormatDiagnostic(id, params, location); ok {
		r.AddIssue(is)
	}
}

// AddErrorWithID records an error-severity issue from a catalog
// template.
func (r *Result) AddErrorWithID(id DiagnosticID, params map[string]any, location string) {
	r.addWithID(id, SeverityError, params, location)
}

// AddWarningWithID records a warning-severity issue from a catalog
// template.
func (r *Result) AddWarningWithID(id DiagnosticID, params map[string]any, location string) {
	r.addWithID(id, SeverityWarning, params, location)
}

// AddInfoWithID records an information-severity issue from a catalog
// template.
func (r *Result) AddInfoWithID(id DiagnosticID, params map[string]any, location string) {
	r.addWithID(id, SeverityInformation, params, location)
}

func (r *Result) addWithID(id DiagnosticID, sev Severity, params map[string]any, location string) {
	is, ok := FormatDiagnostic(id, params, location)
	if !ok {
		is = Issue{
			Code:      CodeInformational,
			Details:   string(id),
			Location:  location,
			MessageID: id,
		}
	}
	is.Severity = sev
	r.AddIssue(is)
}
