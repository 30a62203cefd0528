package async

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SameKeySerializes(t *testing.T) {
	k := NewKeyedMutex()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a1")
			defer unlock()

			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, 0, k.Held())
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a1")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("b1")
		defer unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on b1 blocked behind a1")
	}
}

func TestKeyedMutex_UnlockIdempotent(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("a1")
	assert.Equal(t, 1, k.Held())

	unlock()
	unlock()
	assert.Equal(t, 0, k.Held())

	// Key can be locked again
	unlock = k.Lock("a1")
	unlock()
}
