package shared

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Lynx96-creator/ets2-mod-api/internal/shared/testutil"
)

func TestKeyedMutex(t *testing.T) {
	var km KeyedMutex

	unlockA := km.Lock("a")
	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("a")
		close(acquired)
		unlock()
	}()

	// other keys are independent
	km.Lock("b")()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-acquired

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("c")()
		}()
	}
	wg.Wait()

	assert.Zero(t, km.Len())
}

func TestGo_RecoversPanic(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)

	done := make(chan struct{})
	Go(logger, "boom", func() {
		defer close(done)
		panic("kaput")
	})
	<-done

	assert.Eventually(t, func() bool {
		return handler.ContainsMessage("Recovered panic in background goroutine")
	}, time.Second, 5*time.Millisecond)
	assert.True(t, handler.ContainsAttr("goroutine", "boom"))
}
