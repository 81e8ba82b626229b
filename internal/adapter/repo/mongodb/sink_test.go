package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
)

type fakeCollection struct {
	result *mongo.UpdateResult
	err    error

	calls  int
	filter any
	update any
	opts   []*options.UpdateOptions
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.calls++
	f.filter = filter
	f.update = update
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCollection) setDoc(t *testing.T) bson.M {
	t.Helper()
	update, ok := f.update.(bson.M)
	require.True(t, ok, "update document is a bson.M")
	set, ok := update["$set"].(bson.M)
	require.True(t, ok, "update uses $set")
	return set
}

func testRef() domain.JobRef {
	return domain.JobRef{ScanID: "scan-1", PackageName: "lodash", VulnerabilityID: "GHSA-1"}
}

func fullResult() domain.AnalysisResult {
	desc := "a clear explanation"
	sev := "high"
	conf := 85
	return domain.AnalysisResult{
		Success:     true,
		Description: &desc,
		Severity:    &sev,
		Confidence:  &conf,
		Factors:     map[string]any{"patchAvailable": true},
	}
}

func TestRecord_WritesAllFields(t *testing.T) {
	t.Parallel()
	fake := &fakeCollection{result: &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}}
	s := &Sink{Scans: fake}

	ok := s.Record(context.Background(), testRef(), fullResult())
	require.True(t, ok)
	require.Equal(t, 1, fake.calls)

	assert.Equal(t, bson.M{"_id": "scan-1"}, fake.filter)

	set := fake.setDoc(t)
	assert.Equal(t, "a clear explanation", set[vulnPath+"aiGeneratedDescription"])
	assert.Equal(t, "high", set[vulnPath+"aiDeterminedSeverity"])
	assert.Equal(t, 85, set[vulnPath+"aiSeverityConfidence"])
	assert.Equal(t, map[string]any{"patchAvailable": true}, set[vulnPath+"aiSeverityFactors"])
	assert.NotContains(t, set, vulnPath+"aiAnalysisError")

	ts, isTime := set[vulnPath+"aiAnalysisTimestamp"].(time.Time)
	require.True(t, isTime)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)

	require.Len(t, fake.opts, 1)
	af := fake.opts[0].ArrayFilters
	require.NotNil(t, af)
	assert.Equal(t, []any{
		bson.M{"dep.packageName": "lodash"},
		bson.M{"vuln.id": "GHSA-1"},
	}, af.Filters)
}

func TestRecord_FailedAnalysisWritesOnlyErrorAndTimestamp(t *testing.T) {
	t.Parallel()
	fake := &fakeCollection{result: &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}}
	s := &Sink{Scans: fake}

	msg := "Failed to generate both description and severity analysis"
	res := domain.AnalysisResult{Success: false, Error: &msg}

	require.True(t, s.Record(context.Background(), testRef(), res))

	set := fake.setDoc(t)
	assert.Len(t, set, 2)
	assert.Equal(t, msg, set[vulnPath+"aiAnalysisError"])
	assert.Contains(t, set, vulnPath+"aiAnalysisTimestamp")
}

func TestRecord_SkipsEmptyValues(t *testing.T) {
	t.Parallel()
	fake := &fakeCollection{result: &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}}
	s := &Sink{Scans: fake}

	empty := ""
	zero := 0
	res := domain.AnalysisResult{
		Description: &empty,
		Severity:    &empty,
		Confidence:  &zero,
		Factors:     map[string]any{},
		Error:       &empty,
	}

	require.True(t, s.Record(context.Background(), testRef(), res))

	// Zero confidence is a real value; empty strings and maps are not.
	set := fake.setDoc(t)
	assert.Len(t, set, 2)
	assert.Equal(t, 0, set[vulnPath+"aiSeverityConfidence"])
	assert.Contains(t, set, vulnPath+"aiAnalysisTimestamp")
}

func TestRecord_OutcomeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result *mongo.UpdateResult
		err    error
		want   bool
	}{
		{name: "updated", result: &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, want: true},
		{name: "matched_but_unchanged", result: &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 0}, want: true},
		{name: "no_scan_matched", result: &mongo.UpdateResult{MatchedCount: 0, ModifiedCount: 0}, want: false},
		{name: "driver_error", err: errors.New("socket was unexpectedly closed"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeCollection{result: tt.result, err: tt.err}
			s := &Sink{Scans: fake}
			got := s.Record(context.Background(), testRef(), fullResult())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClose_NilClient(t *testing.T) {
	t.Parallel()
	s := &Sink{}
	require.NoError(t, s.Close(context.Background()))
}
