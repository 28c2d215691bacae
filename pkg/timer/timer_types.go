package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// CancelResult reports what Cancel did to a task.
type CancelResult int

const (
	// NotScheduled means there was no live task to cancel.
	NotScheduled CancelResult = iota
	// Cancelled means the task will not run (again).
	Cancelled
	// AlreadyFired means the task is running or has finished, so it could not be stopped.
	AlreadyFired
)

func (r CancelResult) String() string {
	switch r {
	case NotScheduled:
		return "not-scheduled"
	case Cancelled:
		return "cancelled"
	case AlreadyFired:
		return "already-fired"
	default:
		return "unknown"
	}
}

type taskState int32

const (
	taskPending taskState = iota
	taskRunning
	taskDone
	taskCancelled
)

// Task is a handle to a scheduled callback.
type Task struct {
	fn       func()
	interval time.Duration // zero for one-shot tasks
	state    atomic.Int32
	timer    *time.Timer
	svc      *Service
	mu       sync.Mutex // guards timer
}

// Service runs scheduled tasks on their own goroutines.
type Service struct {
	mu      sync.Mutex
	tasks   map[*Task]struct{}
	stopped bool
	wg      sync.WaitGroup
}
