package latches

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireLatches(t *testing.T) {
	l := NewLatches()

	// Acquiring a new latch is ok.
	wg := l.AcquireLatches([][]byte{{}, {3}, {3, 0, 42}})
	assert.Nil(t, wg)

	// Can only acquire once.
	wg = l.AcquireLatches([][]byte{{}})
	assert.NotNil(t, wg)
	wg = l.AcquireLatches([][]byte{{3, 0, 42}})
	assert.NotNil(t, wg)

	// Release then acquire is ok.
	l.ReleaseLatches([][]byte{{3}, {3, 0, 43}})
	wg = l.AcquireLatches([][]byte{{3}})
	assert.Nil(t, wg)
	wg = l.AcquireLatches([][]byte{{3, 0, 42}})
	assert.NotNil(t, wg)
}

func TestWaitForLatches(t *testing.T) {
	l := NewLatches()
	key := [][]byte{[]byte("counter")}
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.WaitForLatches(key)
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
			l.ReleaseLatches(key)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)
}
