package models

import "testing"

func TestOrderStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	legal := map[OrderStatus][]OrderStatus{
		StatusPending:             {StatusConfirmed, StatusCancelled},
		StatusConfirmed:           {StatusCollectionScheduled, StatusCancelled},
		StatusCollectionScheduled: {StatusSampleCollected, StatusCancelled},
		StatusSampleCollected:     {StatusProcessing, StatusCancelled},
		StatusProcessing:          {StatusReportReady, StatusCancelled},
		StatusReportReady:         {StatusCompleted, StatusCancelled},
		StatusCompleted:           {},
		StatusCancelled:           {},
	}

	// Every (from, to) pair, including illegal ones.
	for _, from := range OrderStatuses() {
		for _, to := range OrderStatuses() {
			want := false
			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOrderStatusNoSkipping(t *testing.T) {
	t.Parallel()

	if StatusPending.CanTransitionTo(StatusCompleted) {
		t.Error("pending must not jump directly to completed")
	}
	if StatusCompleted.CanTransitionTo(StatusCancelled) {
		t.Error("completed is terminal and must not be cancellable")
	}
	if StatusCancelled.CanTransitionTo(StatusConfirmed) {
		t.Error("cancelled is terminal")
	}
}

func TestOrderStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range OrderStatuses() {
		if !s.Valid() {
			t.Errorf("expected %s to be a valid status", s)
		}
	}
	if OrderStatus("shipped").Valid() {
		t.Error("unknown status must not validate")
	}
}

func TestVisitStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to VisitStatus
		want     bool
	}{
		{VisitScheduled, VisitInProgress, true},
		{VisitScheduled, VisitCancelled, true},
		{VisitScheduled, VisitCompleted, false},
		{VisitInProgress, VisitCompleted, true},
		{VisitInProgress, VisitCancelled, true},
		{VisitInProgress, VisitScheduled, false},
		{VisitCompleted, VisitCancelled, false},
		{VisitCancelled, VisitInProgress, false},
	}

	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
