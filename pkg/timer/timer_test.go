package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFires(t *testing.T) {
	s := NewService()
	defer s.Stop()

	done := make(chan struct{})
	task := s.Schedule(func() { close(done) }, 5*time.Millisecond)
	if !task.Pending() {
		t.Fatal("Expected task to be pending right after Schedule")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Task did not fire")
	}
}

func TestCancelResults(t *testing.T) {
	s := NewService()
	defer s.Stop()

	t.Run("nil task", func(t *testing.T) {
		if got := s.Cancel(nil); got != NotScheduled {
			t.Errorf("Cancel(nil) = %v, want %v", got, NotScheduled)
		}
	})

	t.Run("pending task", func(t *testing.T) {
		var ran atomic.Bool
		task := s.Schedule(func() { ran.Store(true) }, time.Hour)
		if got := s.Cancel(task); got != Cancelled {
			t.Errorf("Cancel(pending) = %v, want %v", got, Cancelled)
		}
		if got := s.Cancel(task); got != NotScheduled {
			t.Errorf("second Cancel = %v, want %v", got, NotScheduled)
		}
		if ran.Load() {
			t.Error("Cancelled task ran")
		}
	})

	t.Run("running task", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		task := s.Schedule(func() {
			close(started)
			<-release
		}, 0)
		<-started
		if got := s.Cancel(task); got != AlreadyFired {
			t.Errorf("Cancel(running) = %v, want %v", got, AlreadyFired)
		}
		close(release)
	})

	t.Run("finished task", func(t *testing.T) {
		done := make(chan struct{})
		task := s.Schedule(func() { close(done) }, 0)
		<-done
		deadline := time.Now().Add(time.Second)
		for task.state.Load() != int32(taskDone) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if got := s.Cancel(task); got != AlreadyFired {
			t.Errorf("Cancel(finished) = %v, want %v", got, AlreadyFired)
		}
	})
}

func TestScheduleRepeated(t *testing.T) {
	s := NewService()
	defer s.Stop()

	var count atomic.Int32
	task := s.ScheduleRepeated(func() { count.Add(1) }, 2*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if count.Load() < 3 {
		t.Fatalf("Repeated task fired %d times, want >= 3", count.Load())
	}

	for s.Cancel(task) == AlreadyFired {
		// Caught mid-run: it is already marked cancelled, loop ends on NotScheduled.
	}
	after := count.Load()
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got > after+1 {
		t.Errorf("Task kept firing after cancel: %d -> %d", after, got)
	}
}

func TestStopRefusesNewTasks(t *testing.T) {
	s := NewService()
	s.Schedule(func() {}, time.Hour)
	s.ScheduleRepeated(func() {}, time.Hour)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	s.Stop()

	if s.Len() != 0 {
		t.Errorf("Len() after Stop = %d, want 0", s.Len())
	}
	if task := s.Schedule(func() {}, 0); task != nil {
		t.Error("Schedule after Stop should return nil")
	}
}

func TestCancelResultString(t *testing.T) {
	for r, want := range map[CancelResult]string{
		NotScheduled: "not-scheduled",
		Cancelled:    "cancelled",
		AlreadyFired: "already-fired",
	} {
		if r.String() != want {
			t.Errorf("%d.String() = %q, want %q", r, r.String(), want)
		}
	}
}
