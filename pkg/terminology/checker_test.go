package terminology

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/gofhir/fhir/r4"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
	"github.com/ceciliomichael/wah4pc-phcore/pkg/registry"
)

const genderSystemURL = "http://hl7.org/fhir/administrative-gender"

const genderCodeSystemJSON = `{
  "resourceType": "CodeSystem",
  "url": "http://hl7.org/fhir/administrative-gender",
  "content": "complete",
  "concept": [
    {"code": "male"}, {"code": "female"}, {"code": "other"}, {"code": "unknown"}
  ]
}`

const genderValueSetJSON = `{
  "resourceType": "ValueSet",
  "url": "http://hl7.org/fhir/ValueSet/administrative-gender",
  "compose": {"include": [{"system": "http://hl7.org/fhir/administrative-gender"}]}
}`

const binaryGenderValueSetJSON = `{
  "resourceType": "ValueSet",
  "url": "http://example.org/ValueSet/binary-gender",
  "compose": {"include": [
    {
      "system": "http://hl7.org/fhir/administrative-gender",
      "concept": [{"code": "male"}, {"code": "female"}]
    }
  ]}
}`

func testChecker(t *testing.T) *Checker {
	t.Helper()
	var cs r4.CodeSystem
	if err := json.Unmarshal([]byte(genderCodeSystemJSON), &cs); err != nil {
		t.Fatalf("unmarshal code system: %v", err)
	}
	var full, binary r4.ValueSet
	if err := json.Unmarshal([]byte(genderValueSetJSON), &full); err != nil {
		t.Fatalf("unmarshal value set: %v", err)
	}
	if err := json.Unmarshal([]byte(binaryGenderValueSetJSON), &binary); err != nil {
		t.Fatalf("unmarshal value set: %v", err)
	}

	idx := registry.NewIndex()
	if err := idx.Build(nil, []*r4.ValueSet{&full, &binary}, []*r4.CodeSystem{&cs}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return New(idx)
}

func requiredBinding(valueSet string) *registry.Binding {
	return &registry.Binding{Strength: registry.BindingRequired, ValueSet: valueSet}
}

func TestCheckValidCode(t *testing.T) {
	c := testChecker(t)
	result := issue.NewResult(issue.ModeVerbose)

	c.Check("male", requiredBinding("http://hl7.org/fhir/ValueSet/administrative-gender"), "Patient.gender", result)

	if len(result.Issues) != 0 {
		t.Fatalf("valid code produced %d issues: %+v", len(result.Issues), result.Issues)
	}
}

func TestCheckUnknownCode(t *testing.T) {
	c := testChecker(t)
	result := issue.NewResult(issue.ModeVerbose)
	value := map[string]any{"system": genderSystemURL, "code": "m"}

	c.Check(value, requiredBinding("http://hl7.org/fhir/ValueSet/administrative-gender"), "Patient.gender", result)

	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	is := result.Issues[0]
	if is.Code != issue.CodeUnknownCode {
		t.Errorf("Code = %q, want %q", is.Code, issue.CodeUnknownCode)
	}
	if is.Severity != issue.SeverityError {
		t.Errorf("Severity = %q, want %q", is.Severity, issue.SeverityError)
	}
	if !strings.Contains(is.Details, "Unknown code 'm'") {
		t.Errorf("Details = %q, want unknown code wording", is.Details)
	}
}

func TestCheckNotInValueSet(t *testing.T) {
	c := testChecker(t)
	result := issue.NewResult(issue.ModeVerbose)
	value := map[string]any{"system": genderSystemURL, "code": "other"}

	c.Check(value, requiredBinding("http://example.org/ValueSet/binary-gender"), "Patient.gender", result)

	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	is := result.Issues[0]
	if is.Code != issue.CodeNotInValueSet {
		t.Errorf("Code = %q, want %q", is.Code, issue.CodeNotInValueSet)
	}
	if !strings.Contains(is.Details, genderSystemURL+"|other") {
		t.Errorf("Details = %q, want system|code token", is.Details)
	}
}

func TestCheckStrengthControlsSeverity(t *testing.T) {
	tests := []struct {
		strength   string
		wantIssues int
		wantSev    issue.Severity
	}{
		{registry.BindingRequired, 1, issue.SeverityError},
		{registry.BindingExtensible, 1, issue.SeverityWarning},
		{registry.BindingPreferred, 1, issue.SeverityWarning},
		{registry.BindingExample, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.strength, func(t *testing.T) {
			c := testChecker(t)
			result := issue.NewResult(issue.ModeVerbose)
			binding := &registry.Binding{Strength: tt.strength, ValueSet: "http://example.org/ValueSet/binary-gender"}

			c.Check("other", binding, "Patient.gender", result)

			if len(result.Issues) != tt.wantIssues {
				t.Fatalf("got %d issues, want %d: %+v", len(result.Issues), tt.wantIssues, result.Issues)
			}
			if tt.wantIssues > 0 && result.Issues[0].Severity != tt.wantSev {
				t.Errorf("Severity = %q, want %q", result.Issues[0].Severity, tt.wantSev)
			}
		})
	}
}

func TestCheckValueSetNotFound(t *testing.T) {
	c := testChecker(t)
	result := issue.NewResult(issue.ModeVerbose)

	c.Check("male", requiredBinding("http://example.org/ValueSet/missing"), "Patient.gender", result)

	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	is := result.Issues[0]
	if is.Code != issue.CodeValueSetNotFound {
		t.Errorf("Code = %q, want %q", is.Code, issue.CodeValueSetNotFound)
	}
	if is.Severity != issue.SeverityWarning {
		t.Errorf("Severity = %q, want %q even with a required binding", is.Severity, issue.SeverityWarning)
	}
	if is.Location != "Patient.gender" {
		t.Errorf("Location = %q, want Patient.gender", is.Location)
	}
}

func TestCheckCodeableConcept(t *testing.T) {
	c := testChecker(t)
	result := issue.NewResult(issue.ModeVerbose)
	value := map[string]any{
		"coding": []any{
			map[string]any{"system": genderSystemURL, "code": "male"},
			map[string]any{"system": genderSystemURL, "code": "mael"},
		},
		"text": "Male",
	}

	c.Check(value, requiredBinding("http://hl7.org/fhir/ValueSet/administrative-gender"), "Patient.gender", result)

	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	if got := result.Issues[0].Location; got != "Patient.gender.coding[1]" {
		t.Errorf("Location = %q, want coding-indexed path", got)
	}
}

func TestCheckBareCodeMembership(t *testing.T) {
	c := testChecker(t)

	result := issue.NewResult(issue.ModeVerbose)
	c.Check("female", requiredBinding("http://example.org/ValueSet/binary-gender"), "Patient.gender", result)
	if len(result.Issues) != 0 {
		t.Fatalf("bare member code produced issues: %+v", result.Issues)
	}

	result = issue.NewResult(issue.ModeVerbose)
	c.Check("purple", requiredBinding("http://example.org/ValueSet/binary-gender"), "Patient.gender", result)
	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	if !strings.Contains(result.Issues[0].Details, "'purple'") {
		t.Errorf("Details = %q, want bare code token", result.Issues[0].Details)
	}
}

func TestCheckVersionedValueSetURL(t *testing.T) {
	c := testChecker(t)
	result := issue.NewResult(issue.ModeVerbose)

	c.Check("male", requiredBinding("http://hl7.org/fhir/ValueSet/administrative-gender|4.0.1"), "Patient.gender", result)

	if len(result.Issues) != 0 {
		t.Fatalf("versioned URL should resolve, got %+v", result.Issues)
	}
}

func TestCheckSkipsEmptyValues(t *testing.T) {
	c := testChecker(t)
	binding := requiredBinding("http://hl7.org/fhir/ValueSet/administrative-gender")

	for _, value := range []any{"", map[string]any{"text": "Male"}, map[string]any{"coding": []any{}}, nil} {
		result := issue.NewResult(issue.ModeVerbose)
		c.Check(value, binding, "Patient.gender", result)
		if len(result.Issues) != 0 {
			t.Errorf("value %#v produced issues: %+v", value, result.Issues)
		}
	}
}

func TestCheckHaltsInRegularMode(t *testing.T) {
	c := testChecker(t)
	result := issue.NewResult(issue.ModeRegular)
	value := map[string]any{
		"coding": []any{
			map[string]any{"system": genderSystemURL, "code": "bad-one"},
			map[string]any{"system": genderSystemURL, "code": "bad-two"},
		},
	}

	c.Check(value, requiredBinding("http://hl7.org/fhir/ValueSet/administrative-gender"), "Patient.gender", result)

	if len(result.Issues) != 1 {
		t.Fatalf("regular mode kept %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	if !result.Halted() {
		t.Error("Halted() = false after a required-binding error in regular mode")
	}
}
