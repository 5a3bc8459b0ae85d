package svc

import (
	"context"
	"github.com/beldeveloper/orbit/internal/app"
	"github.com/beldeveloper/orbit/pkg/progress"
	"sync"
)

const progressBuffer = 64

func newDeploymentRun(ctx context.Context, d app.Deployment) *deploymentRun {
	return &deploymentRun{
		deployment: d,
		consumer:   ctx,
		progress:   make(chan progress.Progress, progressBuffer),
		done:       make(chan struct{}),
	}
}

// deploymentRun delivers the progress of one deployment to its consumer.
// Events are dropped once the consumer context is done, the pipeline itself keeps going.
type deploymentRun struct {
	deployment app.Deployment
	consumer   context.Context
	progress   chan progress.Progress
	done       chan struct{}
	once       sync.Once
	err        error
}

func (r *deploymentRun) Deployment() app.Deployment {
	return r.deployment
}

func (r *deploymentRun) Progress() <-chan progress.Progress {
	return r.progress
}

func (r *deploymentRun) Wait() error {
	<-r.done
	return r.err
}

func (r *deploymentRun) emit(p progress.Progress) {
	if r.consumer.Err() != nil {
		return
	}
	select {
	case r.progress <- p:
	case <-r.consumer.Done():
	}
}

func (r *deploymentRun) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.progress)
		close(r.done)
	})
}
