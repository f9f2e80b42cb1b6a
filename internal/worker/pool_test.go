package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	Worker
	usage ResourceUsage
}

func (w *stubWorker) ResourceUsage(ctx context.Context) (ResourceUsage, error) {
	return w.usage, nil
}

func TestSelectWorkerEmptyPool(t *testing.T) {
	pool := NewPool(nil)

	_, err := pool.SelectWorker(context.Background())
	assert.ErrorIs(t, err, ErrNoWorkersAvailable)
}

func TestSelectWorkerLowestLoad(t *testing.T) {
	w1 := &stubWorker{usage: ResourceUsage{UserTime: 2, SystemTime: 1}}
	w2 := &stubWorker{usage: ResourceUsage{UserTime: 0.5, SystemTime: 0.2}}
	w3 := &stubWorker{usage: ResourceUsage{UserTime: 1, SystemTime: 1}}
	pool := NewPool([]Worker{w1, w2, w3})

	selected, err := pool.SelectWorker(context.Background())
	require.NoError(t, err)
	assert.Same(t, w2, selected)
}

func TestSelectWorkerTieKeepsFirst(t *testing.T) {
	w1 := &stubWorker{usage: ResourceUsage{UserTime: 1}}
	w2 := &stubWorker{usage: ResourceUsage{SystemTime: 1}}
	pool := NewPool([]Worker{w1, w2})

	selected, err := pool.SelectWorker(context.Background())
	require.NoError(t, err)
	assert.Same(t, w1, selected)
}
