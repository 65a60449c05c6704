package sampler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modkeeper/internal/bus"
	"modkeeper/internal/moderation"
	"modkeeper/internal/review"
	"modkeeper/internal/store"
)

type stubReviewer struct{}

func (stubReviewer) Review(_ context.Context, req review.Request) moderation.ReviewResult {
	return moderation.ReviewResult{Explanation: "No issues found"}
}

var _ review.Reviewer = stubReviewer{}

func writePost(t *testing.T, dataDir, topic, id, title string) {
	t.Helper()
	dir := filepath.Join(dataDir, topic, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	payload := map[string]any{
		"data": map[string]any{"id": id, "title": title, "selftext": "body of " + id},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.json"), data, 0o644))
}

func writeTopic(t *testing.T, dataDir, topic string, postIDs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, topic), 0o755))
	rules := `[{"short_name": "No spam", "description": "No promotional content"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, topic, "rules.json"), []byte(rules), 0o644))
	for _, id := range postIDs {
		writePost(t, dataDir, topic, id, "post "+id)
	}
}

func TestCycleSamplesBothSources(t *testing.T) {
	dataDir := t.TempDir()
	writeTopic(t, dataDir, "gardening", "p1", "p2", "p3")
	writeTopic(t, dataDir, "Viol_gardening", "v1", "v2")

	b := bus.New(nil)
	st := store.New(b, stubReviewer{}, nil)

	var batches []bus.BackgroundPostsLoaded
	b.Subscribe(bus.EventBackgroundPostsLoaded, func(payload any) {
		batches = append(batches, payload.(bus.BackgroundPostsLoaded))
	})

	s := New(st, b, dataDir, "gardening", nil, WithSeed(7))
	for range 20 {
		s.runCycle(context.Background())
	}

	topics := map[string]bool{}
	for _, batch := range batches {
		topics[batch.Topic] = true
		assert.LessOrEqual(t, batch.BatchSize, 2)
	}
	assert.True(t, topics["gardening"])
	assert.True(t, topics["Viol_gardening"])

	// Every post was eventually reviewed and merged.
	assert.Equal(t, 5, st.Summary().ApprovedCount)
}

func TestProcessedSetClearsPastLimit(t *testing.T) {
	dataDir := t.TempDir()
	writeTopic(t, dataDir, "gardening", "p1", "p2", "p3", "p4")

	b := bus.New(nil)
	st := store.New(b, stubReviewer{}, nil)
	s := New(st, b, dataDir, "gardening", nil, WithSeed(3), WithProcessedLimit(3))

	for range 30 {
		s.runCycle(context.Background())
	}

	// The set can never stay above the limit: it is wiped wholesale.
	assert.LessOrEqual(t, s.ProcessedCount(), 3)
}

func TestMissingSourceIsSkipped(t *testing.T) {
	dataDir := t.TempDir()
	writeTopic(t, dataDir, "gardening", "p1")
	// no Viol_gardening directory

	b := bus.New(nil)
	st := store.New(b, stubReviewer{}, nil)

	var errEvents int
	b.Subscribe(bus.EventSamplerError, func(any) { errEvents++ })

	s := New(st, b, dataDir, "gardening", nil, WithSeed(1))
	for range 10 {
		s.runCycle(context.Background())
	}

	assert.Zero(t, errEvents)
	assert.Equal(t, 1, st.Summary().ApprovedCount)
}

func TestStartStopLifecycle(t *testing.T) {
	dataDir := t.TempDir()
	writeTopic(t, dataDir, "gardening", "p1", "p2")

	b := bus.New(nil)
	st := store.New(b, stubReviewer{}, nil)

	var started, stopped int
	b.Subscribe(bus.EventSamplerStarted, func(any) { started++ })
	b.Subscribe(bus.EventSamplerStopped, func(any) { stopped++ })

	s := New(st, b, dataDir, "gardening", nil,
		WithSeed(5), WithInterval(5*time.Millisecond))
	s.Start(context.Background())
	s.Start(context.Background()) // second Start is a no-op
	time.Sleep(50 * time.Millisecond)

	require.True(t, s.Stop(time.Second))
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)

	// Stopping again is safe.
	assert.True(t, s.Stop(time.Second))
}
