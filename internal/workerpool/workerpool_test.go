package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-mesh/remora/internal/testutil"
)

func TestPostAndShutdownRunsAllTasks(t *testing.T) {
	p := New(2, testutil.NewTestLogger(t))

	var count atomic.Int32
	for i := 0; i < 50; i++ {
		require.True(t, p.Post(func() { count.Add(1) }))
	}

	p.Shutdown()
	assert.Equal(t, int32(50), count.Load(), "shutdown must drain queued tasks")
}

func TestGrowthIsBounded(t *testing.T) {
	p := New(3, testutil.NewTestLogger(t))

	// Block enough tasks to saturate the pool, then check the worker
	// count never exceeds the bound.
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	for i := 0; i < 10; i++ {
		i := i
		p.Post(func() {
			if i < 3 {
				started.Done()
			}
			<-release
		})
	}

	started.Wait()
	assert.LessOrEqual(t, p.WorkerCount(), 3)

	close(release)
	p.Shutdown()
}

func TestBlockedWorkerDoesNotStarveQueue(t *testing.T) {
	p := New(3, testutil.NewTestLogger(t))

	// One task parks a worker; tasks queued behind it must still run on
	// workers spawned after the first one finished starting up.
	release := make(chan struct{})
	p.Post(func() { <-release })

	var count atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		p.Post(func() {
			if count.Add(1) == 5 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued tasks starved behind a blocked worker")
	}

	close(release)
	p.Shutdown()
	assert.Equal(t, int32(5), count.Load())
}

func TestPostAfterShutdown(t *testing.T) {
	p := New(1, testutil.NewTestLogger(t))
	p.Shutdown()

	assert.False(t, p.Post(func() {}), "post after shutdown must be rejected")
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p := New(1, testutil.NewTestLogger(t))

	done := make(chan struct{})
	p.Post(func() { panic("boom") })
	p.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
	p.Shutdown()
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(2, testutil.NewTestLogger(t))
	p.Post(func() {})
	p.Shutdown()
	p.Shutdown()
}
