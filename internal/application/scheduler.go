package application

import (
	"sync"
	"time"
)

// Scheduler runs deferred callbacks and cancels all of them at once on Close.
// After Close, After returns an already-cancelled task.
type Scheduler struct {
	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]*Task
	closed bool
}

// Task is a handle to a scheduled callback.
type Task struct {
	id    uint64
	timer *time.Timer
	owner *Scheduler
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[uint64]*Task)}
}

// After runs fn once d has elapsed unless the task is cancelled first.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &Task{owner: s}
	if s.closed {
		return task
	}

	s.nextID++
	task.id = s.nextID
	task.timer = time.AfterFunc(d, func() {
		if !s.release(task.id) {
			return
		}
		fn()
	})
	s.tasks[task.id] = task
	return task
}

// Cancel stops the task. It is a no-op once the task has fired.
func (t *Task) Cancel() {
	if t == nil || t.timer == nil {
		return
	}
	t.timer.Stop()
	t.owner.release(t.id)
}

// Pending returns the number of tasks that have neither fired nor been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close cancels every pending task and refuses new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, id)
	}
}

// release removes id and reports whether it was still pending.
func (s *Scheduler) release(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	return true
}
