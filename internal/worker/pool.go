package worker

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoWorkersAvailable = errors.New("no workers available")

// Pool owns a fixed set of media-engine workers for the process lifetime.
// Selection samples load at call time; concurrent selections may race onto
// the same worker, which is accepted to keep the pool lock-free.
type Pool struct {
	workers []Worker
}

func NewPool(workers []Worker) *Pool {
	return &Pool{workers: workers}
}

func (p *Pool) Size() int {
	return len(p.workers)
}

// SelectWorker returns the worker with the lowest user+system CPU time.
// Ties resolve to the lowest index.
func (p *Pool) SelectWorker(ctx context.Context) (Worker, error) {
	if len(p.workers) == 0 {
		return nil, ErrNoWorkersAvailable
	}

	var selected Worker
	var minLoad float64
	for i, w := range p.workers {
		usage, err := w.ResourceUsage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to sample worker %d: %w", i, err)
		}

		if selected == nil || usage.Load() < minLoad {
			selected = w
			minLoad = usage.Load()
		}
	}

	return selected, nil
}
