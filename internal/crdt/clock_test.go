package crdt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLamportClock(t *testing.T) {
	clock := NewLamportClock()

	require.NotNil(t, clock)
	assert.Equal(t, int64(0), clock.Timestamp(), "New clock should start at 0")
	assert.NotEmpty(t, clock.ActorID(), "New clock should have a generated actor ID")
}

func TestNewLamportClockWithActorID(t *testing.T) {
	clock := NewLamportClockWithActorID("replica-a")

	require.NotNil(t, clock)
	assert.Equal(t, "replica-a", clock.ActorID())
	assert.Equal(t, int64(0), clock.Timestamp())
}

func TestLamportClock_Tick(t *testing.T) {
	clock := NewLamportClockWithActorID("replica-a")

	assert.Equal(t, int64(1), clock.Tick())
	assert.Equal(t, int64(2), clock.Tick())
	assert.Equal(t, int64(3), clock.Tick())
	assert.Equal(t, int64(3), clock.Timestamp(), "Timestamp should not advance the counter")
}

func TestLamportClock_Update(t *testing.T) {
	tests := []struct {
		name      string
		local     int64
		remote    int64
		wantAfter int64
	}{
		{name: "remote ahead", local: 2, remote: 10, wantAfter: 10},
		{name: "remote behind", local: 7, remote: 3, wantAfter: 7},
		{name: "remote equal", local: 5, remote: 5, wantAfter: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewLamportClockWithActorID("replica-a")
			clock.SetTimestamp(tt.local)

			clock.Update(tt.remote)

			assert.Equal(t, tt.wantAfter, clock.Timestamp())
		})
	}
}

func TestLamportClock_TickAfterUpdate(t *testing.T) {
	clock := NewLamportClockWithActorID("replica-a")

	clock.Update(41)

	// Следующая локальная правка должна получить timestamp больше удаленного.
	assert.Equal(t, int64(42), clock.Tick())
}

func TestLamportClock_ConcurrentTicks(t *testing.T) {
	clock := NewLamportClockWithActorID("replica-a")

	const goroutines = 10
	const ticksEach = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ticksEach; j++ {
				clock.Tick()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*ticksEach), clock.Timestamp())
}
