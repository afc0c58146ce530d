// Package outcome renders validation results as FHIR OperationOutcome
// resources for API consumers.
package outcome

import (
	"encoding/json"
	"net/http"

	"github.com/gofhir/fhir/r4"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
)

// successText is reported when a result carries no issues at all.
const successText = "Resource validation completed successfully"

// issueTypeFor maps the engine's issue taxonomy onto the FHIR IssueType
// value set used by OperationOutcome.issue.code.
var issueTypeFor = map[issue.Code]string{
	issue.CodeCardinalityMin:   "required",
	issue.CodeCardinalityMax:   "structure",
	issue.CodeTypeMismatch:     "structure",
	issue.CodeInvalidSlice:     "structure",
	issue.CodeProfileNotFound:  "not-found",
	issue.CodeValueSetNotFound: "not-found",
	issue.CodeUnknownCode:      "code-invalid",
	issue.CodeNotInValueSet:    "code-invalid",
	issue.CodeInformational:    "informational",
}

// FromResult builds an OperationOutcome carrying one entry per issue,
// in the result's order. A result without issues gets a single
// informational success entry.
func FromResult(result *issue.Result) *r4.OperationOutcome {
	out := &r4.OperationOutcome{}

	for i := range result.Issues {
		out.Issue = append(out.Issue, renderIssue(&result.Issues[i]))
	}

	if len(out.Issue) == 0 {
		out.Issue = append(out.Issue, r4.OperationOutcomeIssue{
			Severity: sev(string(issue.SeverityInformation)),
			Code:     typ("informational"),
			Details:  conceptFor(issue.CodeInformational, successText),
		})
	}
	return out
}

// Marshal renders the result as OperationOutcome JSON.
func Marshal(result *issue.Result) ([]byte, error) {
	return json.Marshal(FromResult(result))
}

// StatusCode returns the HTTP status a validation endpoint responds
// with for this result.
func StatusCode(result *issue.Result) int {
	if result.Valid() {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func renderIssue(is *issue.Issue) r4.OperationOutcomeIssue {
	entry := r4.OperationOutcomeIssue{
		Severity: sev(string(is.Severity)),
		Code:     typ(issueType(is.Code)),
		Details:  conceptFor(is.Code, is.Details),
	}
	if is.Location != "" {
		entry.Location = []string{is.Location}
	}
	return entry
}

func issueType(code issue.Code) string {
	if t, ok := issueTypeFor[code]; ok {
		return t
	}
	return "processing"
}

// conceptFor keeps the engine's own issue code available to consumers
// as a coding alongside the human-readable text.
func conceptFor(code issue.Code, text string) *r4.CodeableConcept {
	return &r4.CodeableConcept{
		Coding: []r4.Coding{{Code: str(string(code))}},
		Text:   str(text),
	}
}

func str(s string) *string {
	return &s
}

func sev(s string) *r4.IssueSeverity {
	v := r4.IssueSeverity(s)
	return &v
}

func typ(s string) *r4.IssueType {
	v := r4.IssueType(s)
	return &v
}
