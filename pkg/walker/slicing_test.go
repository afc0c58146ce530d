package walker

import (
	"strings"
	"testing"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/issue"
)

func TestSliceMinViolation(t *testing.T) {
	doc := `{
	  "resourceType": "Patient",
	  "name": [{"family": "Reyes"}]
	}`
	result := walkDoc(t, testPatientSD, doc, issue.ModeVerbose)

	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	is := result.Issues[0]
	if is.MessageID != issue.DiagSliceCardinalityMin {
		t.Errorf("MessageID = %q, want %q", is.MessageID, issue.DiagSliceCardinalityMin)
	}
	if is.Location != "Patient.extension:indigenousPeople" {
		t.Errorf("Location = %q, want slice-qualified path", is.Location)
	}
	if !strings.Contains(is.Details, "requires minimum 1 occurrence(s), found 0") {
		t.Errorf("Details = %q, want occurrence wording", is.Details)
	}
}

func TestSliceMaxViolation(t *testing.T) {
	doc := `{
	  "resourceType": "Patient",
	  "extension": [{"url": "http://localhost:5072/ph-core/fhir/StructureDefinition/indigenous-people"}],
	  "identifier": [
	    {"system": "http://philhealth.gov.ph/fhir/Identifier/philhealth-id", "value": "63-000000001-0"},
	    {"system": "http://philhealth.gov.ph/fhir/Identifier/philhealth-id", "value": "63-000000002-0"}
	  ],
	  "name": [{"family": "Reyes"}]
	}`
	result := walkDoc(t, testPatientSD, doc, issue.ModeVerbose)

	var found bool
	for _, is := range result.Issues {
		if is.MessageID == issue.DiagSliceCardinalityMax {
			found = true
			if is.Location != "Patient.identifier:philhealth" {
				t.Errorf("Location = %q, want Patient.identifier:philhealth", is.Location)
			}
		}
	}
	if !found {
		t.Fatalf("no slice max issue in %+v", result.Issues)
	}
}

func TestSliceEntriesOutsideSlicesAreOpen(t *testing.T) {
	// A driver's license identifier matches no declared slice; open
	// slicing lets it through untouched.
	doc := `{
	  "resourceType": "Patient",
	  "extension": [{"url": "http://localhost:5072/ph-core/fhir/StructureDefinition/indigenous-people"}],
	  "identifier": [
	    {"system": "http://example.org/drivers-license", "value": "N01-23-456789"}
	  ],
	  "name": [{"family": "Reyes"}]
	}`
	result := walkDoc(t, testPatientSD, doc, issue.ModeVerbose)
	if len(result.Issues) != 0 {
		t.Fatalf("open slicing should permit unmatched entries, got %+v", result.Issues)
	}
}

func TestSliceChildConstraintsApplyToMatchedEntries(t *testing.T) {
	// The philhealth entry is missing its value; the unmatched entry is
	// missing one too but no slice claims it, so only one issue comes out.
	doc := `{
	  "resourceType": "Patient",
	  "extension": [{"url": "http://localhost:5072/ph-core/fhir/StructureDefinition/indigenous-people"}],
	  "identifier": [
	    {"system": "http://example.org/drivers-license"},
	    {"system": "http://philhealth.gov.ph/fhir/Identifier/philhealth-id"}
	  ],
	  "name": [{"family": "Reyes"}]
	}`
	result := walkDoc(t, testPatientSD, doc, issue.ModeVerbose)

	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	is := result.Issues[0]
	if is.MessageID != issue.DiagCardinalityMin {
		t.Errorf("MessageID = %q, want %q", is.MessageID, issue.DiagCardinalityMin)
	}
	if is.Location != "Patient.identifier[1].value" {
		t.Errorf("Location = %q, want entry-indexed path", is.Location)
	}
}

const closedSlicingSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://example.org/StructureDefinition/closed-identifiers",
  "type": "Patient",
  "snapshot": {"element": [
    {"id": "Patient", "path": "Patient"},
    {
      "id": "Patient.identifier", "path": "Patient.identifier", "min": 0, "max": "*",
      "slicing": {"discriminator": [{"type": "value", "path": "system"}], "rules": "closed"}
    },
    {
      "id": "Patient.identifier:philhealth", "path": "Patient.identifier",
      "sliceName": "philhealth", "min": 0, "max": "1"
    },
    {
      "id": "Patient.identifier:philhealth.system", "path": "Patient.identifier.system",
      "min": 1, "max": "1",
      "fixedUri": "http://philhealth.gov.ph/fhir/Identifier/philhealth-id"
    }
  ]}
}`

func TestClosedSlicingRejectsUnmatched(t *testing.T) {
	doc := `{
	  "resourceType": "Patient",
	  "identifier": [
	    {"system": "http://philhealth.gov.ph/fhir/Identifier/philhealth-id", "value": "63-123456789-0"},
	    {"system": "http://example.org/drivers-license", "value": "N01-23-456789"}
	  ]
	}`
	result := walkDoc(t, closedSlicingSD, doc, issue.ModeVerbose)

	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	is := result.Issues[0]
	if is.MessageID != issue.DiagSlicingClosed {
		t.Errorf("MessageID = %q, want %q", is.MessageID, issue.DiagSlicingClosed)
	}
	if is.Code != issue.CodeInvalidSlice {
		t.Errorf("Code = %q, want %q", is.Code, issue.CodeInvalidSlice)
	}
	if is.Location != "Patient.identifier[1]" {
		t.Errorf("Location = %q, want Patient.identifier[1]", is.Location)
	}
}

func TestClosedSlicingAcceptsFullPartition(t *testing.T) {
	doc := `{
	  "resourceType": "Patient",
	  "identifier": [
	    {"system": "http://philhealth.gov.ph/fhir/Identifier/philhealth-id", "value": "63-123456789-0"}
	  ]
	}`
	result := walkDoc(t, closedSlicingSD, doc, issue.ModeVerbose)
	if len(result.Issues) != 0 {
		t.Fatalf("fully partitioned closed slicing should pass, got %+v", result.Issues)
	}
}

func TestSliceAssignmentFirstMatchWins(t *testing.T) {
	// Two slices whose literals overlap on the same system: declared
	// order decides.
	sd := `{
	  "resourceType": "StructureDefinition",
	  "url": "http://example.org/StructureDefinition/overlap",
	  "type": "Patient",
	  "snapshot": {"element": [
	    {"id": "Patient", "path": "Patient"},
	    {
	      "id": "Patient.identifier", "path": "Patient.identifier", "min": 0, "max": "*",
	      "slicing": {"discriminator": [{"type": "value", "path": "system"}], "rules": "open"}
	    },
	    {"id": "Patient.identifier:first", "path": "Patient.identifier", "sliceName": "first", "min": 1, "max": "1"},
	    {"id": "Patient.identifier:first.system", "path": "Patient.identifier.system", "fixedUri": "http://example.org/sys"},
	    {"id": "Patient.identifier:second", "path": "Patient.identifier", "sliceName": "second", "min": 1, "max": "1"},
	    {"id": "Patient.identifier:second.system", "path": "Patient.identifier.system", "fixedUri": "http://example.org/sys"}
	  ]}
	}`
	doc := `{
	  "resourceType": "Patient",
	  "identifier": [{"system": "http://example.org/sys", "value": "x"}]
	}`
	result := walkDoc(t, sd, doc, issue.ModeVerbose)

	// The single entry lands in "first"; "second" stays empty and
	// reports its own minimum.
	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %+v", len(result.Issues), result.Issues)
	}
	if result.Issues[0].Location != "Patient.identifier:second" {
		t.Errorf("Location = %q, want Patient.identifier:second", result.Issues[0].Location)
	}
}

func TestExtensionSliceMatchedByURL(t *testing.T) {
	// One declared extension and one foreign extension; the foreign one
	// is ignored under open slicing, the declared one satisfies its min.
	doc := `{
	  "resourceType": "Patient",
	  "extension": [
	    {"url": "http://example.org/some-other-extension", "valueString": "x"},
	    {"url": "http://localhost:5072/ph-core/fhir/StructureDefinition/indigenous-people", "valueBoolean": true}
	  ],
	  "name": [{"family": "Reyes"}]
	}`
	result := walkDoc(t, testPatientSD, doc, issue.ModeVerbose)
	if len(result.Issues) != 0 {
		t.Fatalf("matched extension slice should pass, got %+v", result.Issues)
	}
}

func TestDiscriminatorPathOverArrays(t *testing.T) {
	// Discriminator "coding.code" reaches through the coding array.
	sd := `{
	  "resourceType": "StructureDefinition",
	  "url": "http://example.org/StructureDefinition/category-slices",
	  "type": "Observation",
	  "snapshot": {"element": [
	    {"id": "Observation", "path": "Observation"},
	    {
	      "id": "Observation.category", "path": "Observation.category", "min": 0, "max": "*",
	      "slicing": {"discriminator": [{"type": "value", "path": "coding.code"}], "rules": "open"}
	    },
	    {"id": "Observation.category:vital", "path": "Observation.category", "sliceName": "vital", "min": 1, "max": "1"},
	    {"id": "Observation.category:vital.coding.code", "path": "Observation.category.coding.code", "fixedCode": "vital-signs"}
	  ]}
	}`
	doc := `{
	  "resourceType": "Observation",
	  "category": [{"coding": [{"system": "http://terminology.hl7.org/CodeSystem/observation-category", "code": "vital-signs"}]}]
	}`
	result := walkDoc(t, sd, doc, issue.ModeVerbose)
	if len(result.Issues) != 0 {
		t.Fatalf("array-traversing discriminator should match, got %+v", result.Issues)
	}
}
