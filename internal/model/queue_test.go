package model

import "testing"

func TestTaskStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskPending, TaskProcessing, true},
		{TaskPending, TaskCancelled, true},
		{TaskPending, TaskSent, false}, // cannot skip processing
		{TaskPending, TaskFailed, false},
		{TaskProcessing, TaskSent, true},
		{TaskProcessing, TaskPending, true}, // transient requeue
		{TaskProcessing, TaskFailed, true},
		{TaskProcessing, TaskCancelled, true},
		{TaskSent, TaskPending, false},
		{TaskSent, TaskProcessing, false},
		{TaskFailed, TaskPending, false},
		{TaskCancelled, TaskProcessing, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminals := []TaskStatus{TaskSent, TaskFailed, TaskCancelled}
	for _, s := range terminals {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		for _, to := range []TaskStatus{TaskPending, TaskProcessing, TaskSent, TaskFailed, TaskCancelled} {
			if s.CanTransition(to) {
				t.Errorf("terminal %s must not transition to %s", s, to)
			}
		}
	}
	for _, s := range []TaskStatus{TaskPending, TaskProcessing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParseEventType(t *testing.T) {
	if et, ok := ParseEventType(" Delivered "); !ok || et != EventDelivered {
		t.Errorf("got %q %v", et, ok)
	}
	if _, ok := ParseEventType("exploded"); ok {
		t.Error("unknown event type accepted")
	}
}
