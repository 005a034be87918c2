package application_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/mergebridge/internal/application"
)

func TestScheduler_RunsAfterDelay(t *testing.T) {
	s := application.NewScheduler()
	defer s.Close()

	fired := make(chan struct{})
	s.After(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("task never fired")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestScheduler_CancelPreventsRun(t *testing.T) {
	s := application.NewScheduler()
	defer s.Close()

	var fired atomic.Bool
	task := s.After(20*time.Millisecond, func() { fired.Store(true) })
	assert.Equal(t, 1, s.Pending())

	task.Cancel()
	assert.Equal(t, 0, s.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestScheduler_CloseCancelsEverything(t *testing.T) {
	s := application.NewScheduler()

	var fired atomic.Int32
	for range 5 {
		s.After(20*time.Millisecond, func() { fired.Add(1) })
	}
	assert.Equal(t, 5, s.Pending())

	s.Close()
	assert.Equal(t, 0, s.Pending())

	s.After(time.Millisecond, func() { fired.Add(1) })
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
