// Package timer is the scheduler shared by every coordination component of
// a process. Each task carries its own state so cancellation can tell a task
// that was removed apart from one that had already started.
package timer

import (
	"time"
)

// NewService creates a running scheduler.
func NewService() *Service {
	return &Service{tasks: make(map[*Task]struct{})}
}

// Schedule runs fn once after delay. It returns nil once the service is stopped.
func (s *Service) Schedule(fn func(), delay time.Duration) *Task {
	return s.add(fn, delay, 0)
}

// ScheduleRepeated runs fn every interval until the task is cancelled.
func (s *Service) ScheduleRepeated(fn func(), interval time.Duration) *Task {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return s.add(fn, interval, interval)
}

func (s *Service) add(fn func(), delay, interval time.Duration) *Task {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	t := &Task{fn: fn, interval: interval, svc: s}
	t.state.Store(int32(taskPending))
	s.tasks[t] = struct{}{}

	t.mu.Lock()
	t.timer = time.AfterFunc(delay, t.fire)
	t.mu.Unlock()
	return t
}

// Cancel stops t. A one-shot task that has started or finished reports
// AlreadyFired; a repeating task caught mid-run is still prevented from
// running again but also reports AlreadyFired.
func (s *Service) Cancel(t *Task) CancelResult {
	if t == nil {
		return NotScheduled
	}

	for {
		if t.state.CompareAndSwap(int32(taskPending), int32(taskCancelled)) {
			t.mu.Lock()
			t.timer.Stop()
			t.mu.Unlock()
			s.forget(t)
			return Cancelled
		}

		switch taskState(t.state.Load()) {
		case taskRunning:
			if t.interval == 0 {
				return AlreadyFired
			}
			if t.state.CompareAndSwap(int32(taskRunning), int32(taskCancelled)) {
				return AlreadyFired
			}
		case taskDone:
			return AlreadyFired
		case taskCancelled:
			return NotScheduled
		}
		// The task changed state under us; look again.
	}
}

// Pending reports whether t exists and has not started running yet.
func (t *Task) Pending() bool {
	return t != nil && taskState(t.state.Load()) == taskPending
}

func (t *Task) fire() {
	s := t.svc
	s.mu.Lock()
	if s.stopped || !t.state.CompareAndSwap(int32(taskPending), int32(taskRunning)) {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	t.fn()

	if t.interval == 0 {
		t.state.Store(int32(taskDone))
		s.forget(t)
		return
	}

	// A Cancel during fn moved the state to cancelled; keep it that way.
	if !t.state.CompareAndSwap(int32(taskRunning), int32(taskPending)) {
		s.forget(t)
		return
	}
	t.mu.Lock()
	t.timer.Reset(t.interval)
	t.mu.Unlock()
}

func (s *Service) forget(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}

// Len returns the number of tasks that have not finished or been cancelled.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task, refuses new ones and waits for running
// callbacks to return.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		s.Cancel(t)
	}
	s.wg.Wait()
}
