package workpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRespectsLimit(t *testing.T) {
	pool := New(2)
	release := make(chan struct{})
	scheduled := make(chan struct{})

	var current, peak atomic.Int32
	go func() {
		for i := 0; i < 6; i++ {
			pool.Execute(func() {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				current.Add(-1)
			})
		}
		close(scheduled)
	}()

	require.Eventually(t, func() bool { return current.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, pool.Running())

	close(release)
	<-scheduled
	pool.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 0, pool.Running())
}

func TestTryExecute(t *testing.T) {
	pool := New(1)
	block := make(chan struct{})
	running := make(chan struct{})

	assert.True(t, pool.TryExecute(func() {
		close(running)
		<-block
	}))
	<-running
	assert.False(t, pool.TryExecute(func() {}))
	assert.Equal(t, 1, pool.Running())

	close(block)
	pool.Wait()
	assert.Equal(t, 0, pool.Running())
}

func TestInline(t *testing.T) {
	ran := false
	Inline{}.Execute(func() { ran = true })
	assert.True(t, ran)
}
