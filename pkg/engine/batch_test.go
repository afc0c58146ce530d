package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBatchEmpty(t *testing.T) {
	eng := newTestEngine(t)

	br := eng.ValidateBatch(context.Background(), nil, ModeRegular)

	assert.Zero(t, br.TotalJobs)
	assert.Empty(t, br.Results)
	assert.False(t, br.HasErrors())
}

func TestValidateBatchSequential(t *testing.T) {
	eng := newTestEngine(t)
	jobs := []Job{
		{ID: "clean", Document: []byte(cleanPatientJSON)},
		{ID: "broken", Document: []byte(missingExtensionJSON)},
	}

	br := eng.ValidateBatch(context.Background(), jobs, ModeVerbose)

	assert.Equal(t, 2, br.TotalJobs)
	assert.Equal(t, 2, br.CompletedJobs)
	assert.Zero(t, br.FailedJobs)
	require.Len(t, br.Results, 2)

	assert.Equal(t, "clean", br.Results[0].ID)
	assert.True(t, br.Results[0].Result.Valid())

	assert.Equal(t, "broken", br.Results[1].ID)
	assert.False(t, br.Results[1].Result.Valid())

	assert.True(t, br.HasErrors())
	assert.Equal(t, 1, br.ErrorCount())
}

func TestValidateBatchParallelKeepsOrder(t *testing.T) {
	eng := newTestEngine(t, WithWorkers(3))

	var jobs []Job
	for i := 0; i < 8; i++ {
		doc := cleanPatientJSON
		if i%2 == 1 {
			doc = missingExtensionJSON
		}
		jobs = append(jobs, Job{ID: string(rune('a' + i)), Document: []byte(doc)})
	}

	br := eng.ValidateBatch(context.Background(), jobs, ModeRegular)

	assert.Equal(t, 8, br.TotalJobs)
	assert.Equal(t, 8, br.CompletedJobs)
	assert.Zero(t, br.FailedJobs)
	require.Len(t, br.Results, 8)

	for i, jr := range br.Results {
		require.NotNil(t, jr, "job %d", i)
		assert.Equal(t, jobs[i].ID, jr.ID)
		assert.Equal(t, i%2 == 0, jr.Result.Valid(), "job %d", i)
	}
	assert.Equal(t, 4, br.ErrorCount())
}

func TestValidateBatchAssignsJobIDs(t *testing.T) {
	eng := newTestEngine(t)

	br := eng.ValidateDocuments(context.Background(), [][]byte{
		[]byte(cleanPatientJSON),
		[]byte(cleanPatientJSON),
	}, ModeRegular)

	require.Len(t, br.Results, 2)
	require.NoError(t, uuid.Validate(br.Results[0].ID))
	require.NoError(t, uuid.Validate(br.Results[1].ID))
	assert.NotEqual(t, br.Results[0].ID, br.Results[1].ID)
}

func TestValidateBatchPerJobProfiles(t *testing.T) {
	eng := newTestEngine(t)
	jobs := []Job{{
		ID:       "profiled",
		Document: []byte(`{"resourceType": "Patient", "name": [{"family": "Reyes"}]}`),
		Profiles: []string{phCorePatientURL},
	}}

	br := eng.ValidateBatch(context.Background(), jobs, ModeVerbose)

	require.Len(t, br.Results, 1)
	result := br.Results[0].Result
	require.NotNil(t, result)
	assert.False(t, result.Valid())
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, "Patient.extension:indigenousPeople", result.Issues[0].Location)
}

func TestValidateBatchCancelled(t *testing.T) {
	eng := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = Job{Document: []byte(cleanPatientJSON)}
	}

	br := eng.ValidateBatch(ctx, jobs, ModeRegular)

	assert.Equal(t, 5, br.TotalJobs)
	assert.Zero(t, br.CompletedJobs)
	assert.False(t, br.HasErrors())
	for _, jr := range br.Results {
		assert.Nil(t, jr)
	}
}

func BenchmarkValidateBatch(b *testing.B) {
	eng := newTestEngine(b)
	docs := make([][]byte, 16)
	for i := range docs {
		docs[i] = []byte(cleanPatientJSON)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		br := eng.ValidateDocuments(ctx, docs, ModeRegular)
		if br.HasErrors() {
			b.Fatal("unexpected batch errors")
		}
	}
}
