package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_PinnedUntilAdvanced(t *testing.T) {
	start := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now(), "repeated reads must not move the clock")

	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())

	clock.Advance(-time.Minute)
	assert.Equal(t, start.Add(30*time.Second), clock.Now())
}

func TestClock_Set(t *testing.T) {
	clock := NewClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))

	pinned := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	clock.Set(pinned)
	assert.Equal(t, pinned, clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = clock.Now()
		}()
	}
	wg.Wait()

	want := time.Date(2024, 2, 1, 10, 0, 50, 0, time.UTC)
	assert.Equal(t, want, clock.Now())
}

func TestFixedIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedIDGenerator("00000000-0000-0000-0000-000000000001")

	assert.Equal(t, "00000000-0000-0000-0000-000000000001", gen.Generate())
	assert.Equal(t, gen.Generate(), gen.Generate())
}

func TestFixedIDGenerator_EmptyFallsBackToDefault(t *testing.T) {
	gen := NewFixedIDGenerator("")
	assert.Equal(t, "test-trace-default", gen.Generate())
}
