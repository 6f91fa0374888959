package dedup

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFingerprint(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	body := "Rs. 1,250.50 debited from a/c XX12"

	t.Run("StableInsideBucket", func(t *testing.T) {
		a := Fingerprint(body, "BANK", base, DefaultWindow)
		b := Fingerprint(body, "BANK", base.Add(4*time.Minute+59*time.Second), DefaultWindow)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("DistinctAcrossBuckets", func(t *testing.T) {
		a := Fingerprint(body, "BANK", base, DefaultWindow)
		b := Fingerprint(body, "BANK", base.Add(6*time.Minute), DefaultWindow)
		assert.NotEqual(t, a, b)
	})

	t.Run("SourceIsPartOfKey", func(t *testing.T) {
		a := Fingerprint(body, "BANK", base, DefaultWindow)
		b := Fingerprint(body, "OTHER", base, DefaultWindow)
		assert.NotEqual(t, a, b)
	})

	t.Run("FieldBoundariesMatter", func(t *testing.T) {
		a := Fingerprint("ab", "c", base, DefaultWindow)
		b := Fingerprint("a", "bc", base, DefaultWindow)
		assert.NotEqual(t, a, b)
	})

	t.Run("ZeroWindowFallsBackToDefault", func(t *testing.T) {
		assert.Equal(t, Bucket(base, DefaultWindow), Bucket(base, 0))
	})
}

func TestCoordinator_Claims(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	assert.True(t, c.TryBegin("fp1"))
	assert.False(t, c.TryBegin("fp1"), "second claim must fail while held")
	assert.True(t, c.TryBegin("fp2"))
	assert.Equal(t, 2, c.InFlight())

	c.End("fp1")
	assert.True(t, c.TryBegin("fp1"), "released claim can be taken again")

	c.Reset()
	assert.Equal(t, 0, c.InFlight())
	assert.True(t, c.TryBegin("fp2"))
}

func TestCoordinator_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryBegin("same") {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestCoordinator_SMSLock(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	assert.True(t, c.TryAcquireSMS())
	assert.False(t, c.TryAcquireSMS(), "second SMS event is dropped while one is in flight")

	c.ReleaseSMS()
	assert.True(t, c.TryAcquireSMS())

	c.Reset()
	assert.True(t, c.TryAcquireSMS(), "reset frees the lock")
}
