package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type blockingRunner struct {
	started atomic.Int32
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context) {
	r.started.Add(1)
	if r.release != nil {
		<-r.release
	}
}

func TestOverlappingTriggerIsSkipped(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	p := New(runner, time.Hour)

	ctx := context.Background()
	p.trigger(ctx)

	// Wait for the first cycle to actually start
	assert.Eventually(t, func() bool {
		return runner.started.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Still in flight: these triggers must be dropped
	p.trigger(ctx)
	p.trigger(ctx)
	assert.Equal(t, int32(1), runner.started.Load())

	close(runner.release)
	p.wg.Wait()

	// Free again: next trigger runs
	p.trigger(ctx)
	p.wg.Wait()
	assert.Equal(t, int32(2), runner.started.Load())
}

func TestStartRunsInitialCycleAndStops(t *testing.T) {
	runner := &blockingRunner{}
	p := New(runner, time.Hour)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return runner.started.Load() == 1
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	<-done
}

func TestStartStopsOnContextCancel(t *testing.T) {
	runner := &blockingRunner{}
	p := New(runner, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on context cancel")
	}
	p.wg.Wait()
}

func TestTickerTriggersCycles(t *testing.T) {
	runner := &blockingRunner{}
	p := New(runner, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return runner.started.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	<-done
}
