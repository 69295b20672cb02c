package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	jobs, err := q.Consume(ctx)
	require.NoError(t, err)

	want := VerifyJob{EventID: "evt-1", StudentID: "stu-1", SnapshotURL: "https://cdn.example/f.jpg"}
	require.NoError(t, q.Publish(ctx, want))

	select {
	case got := <-jobs:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job")
	}
}

func TestInMemoryPublishRespectsCancellation(t *testing.T) {
	q := NewInMemory(0) // unbuffered, no consumer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Publish(ctx, VerifyJob{EventID: "evt-1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(1)
	jobs, err := q.Consume(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-jobs:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
