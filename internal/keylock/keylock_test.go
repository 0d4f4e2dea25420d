package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("5493454000000")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.Len(), "entries are freed once released")
}

func TestLocker_TryLock(t *testing.T) {
	l := New()
	unlock := l.Lock("a")

	_, ok := l.TryLock("a")
	assert.False(t, ok)

	unlockB, ok := l.TryLock("b")
	assert.True(t, ok)
	unlockB()

	unlock()
	unlockA, ok := l.TryLock("a")
	assert.True(t, ok)
	unlockA()
	assert.Equal(t, 0, l.Len())
}
