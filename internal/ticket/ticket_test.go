package ticket

import "testing"

func TestStatusValues(t *testing.T) {
	statuses := []Status{StatusOpen, StatusInProgress, StatusResolved, StatusBlocked, StatusClosed}
	expected := []string{"open", "in_progress", "resolved", "blocked", "closed"}
	for i, s := range statuses {
		if string(s) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusInProgress, true},
		{StatusOpen, StatusBlocked, true},
		{StatusOpen, StatusClosed, true},
		{StatusOpen, StatusResolved, false},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusBlocked, true},
		{StatusInProgress, StatusClosed, true},
		{StatusInProgress, StatusOpen, false},
		{StatusBlocked, StatusInProgress, true},
		{StatusBlocked, StatusClosed, true},
		{StatusBlocked, StatusResolved, false},
		{StatusResolved, StatusInProgress, false},
		{StatusResolved, StatusClosed, false},
		{StatusClosed, StatusInProgress, false},
		{StatusOpen, StatusOpen, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if !ValidPriority(p) {
			t.Errorf("expected %s valid", p)
		}
	}
	if ValidPriority("urgent") {
		t.Error("unknown priority must be invalid")
	}
}
