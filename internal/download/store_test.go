package download

import "testing"

func batchOf(n int, size int64) []Task {
	tasks := make([]Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, Task{
			ID:           int64(i + 1),
			URL:          "http://example.test/file",
			Destination:  "/tmp/file",
			ExpectedSize: size,
		})
	}
	return tasks
}

func TestStore_Init(t *testing.T) {
	st := NewStore()
	st.Init(batchOf(3, 100))

	snap := st.Snapshot()
	if snap.Counters.TotalQueued != 3 {
		t.Errorf("TotalQueued = %d, want 3", snap.Counters.TotalQueued)
	}
	if snap.Counters.TotalExpectedBytes != 300 {
		t.Errorf("TotalExpectedBytes = %d, want 300", snap.Counters.TotalExpectedBytes)
	}
	if len(snap.Order) != 3 {
		t.Fatalf("len(Order) = %d, want 3", len(snap.Order))
	}
	for i, id := range snap.Order {
		if id != int64(i+1) {
			t.Errorf("Order[%d] = %d, want %d", i, id, i+1)
		}
		if snap.Statuses[id].State != StatePending {
			t.Errorf("Statuses[%d].State = %q, want %q", id, snap.Statuses[id].State, StatePending)
		}
	}
}

func TestStore_SetStatus_CounterDeltas(t *testing.T) {
	st := NewStore()
	gen := st.Init(batchOf(2, 50))

	st.SetStatus(gen, 1, Status{State: StateDownloading})
	snap := st.Snapshot()
	if snap.Counters.Active != 1 {
		t.Errorf("Active = %d, want 1", snap.Counters.Active)
	}

	st.SetStatus(gen, 1, Status{State: StateComplete})
	snap = st.Snapshot()
	if snap.Counters.Active != 0 {
		t.Errorf("Active after complete = %d, want 0", snap.Counters.Active)
	}
	if snap.Counters.Completed != 1 {
		t.Errorf("Completed = %d, want 1", snap.Counters.Completed)
	}
	if snap.Counters.BytesDone != 50 {
		t.Errorf("BytesDone = %d, want 50 (expected size attributed on completion)", snap.Counters.BytesDone)
	}
}

func TestStore_SkippedAttributesExpectedBytes(t *testing.T) {
	st := NewStore()
	gen := st.Init(batchOf(1, 200))

	if !st.SetStatus(gen, 1, Status{State: StateSkipped}) {
		t.Fatal("SetStatus(Skipped) refused")
	}

	snap := st.Snapshot()
	if snap.Counters.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", snap.Counters.Skipped)
	}
	if snap.Counters.BytesDone != 200 {
		t.Errorf("BytesDone = %d, want 200", snap.Counters.BytesDone)
	}
}

func TestStore_TerminalFinality(t *testing.T) {
	st := NewStore()
	gen := st.Init(batchOf(1, 0))

	st.SetStatus(gen, 1, Status{State: StateDownloading})
	st.SetStatus(gen, 1, Status{State: StateComplete})

	for _, state := range []State{StateDownloading, StateFailed, StateCancelled, StatePending} {
		if st.SetStatus(gen, 1, Status{State: state}) {
			t.Errorf("SetStatus(%q) applied after terminal state", state)
		}
	}

	status, _ := st.Get(1)
	if status.State != StateComplete {
		t.Errorf("State = %q, want %q", status.State, StateComplete)
	}

	snap := st.Snapshot()
	if snap.Counters.Completed != 1 {
		t.Errorf("Completed = %d, want 1", snap.Counters.Completed)
	}
}

func TestStore_UnknownIDIgnored(t *testing.T) {
	st := NewStore()
	gen := st.Init(batchOf(1, 0))

	if st.SetStatus(gen, 99, Status{State: StateComplete}) {
		t.Error("SetStatus applied for unknown id")
	}
	if got := st.Snapshot().Counters.Completed; got != 0 {
		t.Errorf("Completed = %d, want 0", got)
	}
}

func TestStore_StaleGenerationRefused(t *testing.T) {
	st := NewStore()
	oldGen := st.Init(batchOf(1, 0))
	st.SetStatus(oldGen, 1, Status{State: StateDownloading})

	// A new batch with the same id replaces the old one.
	newGen := st.Init(batchOf(1, 0))

	if st.SetStatus(oldGen, 1, Status{State: StateFailed, Reason: "HTTP 404"}) {
		t.Error("stale-generation write applied to the new batch")
	}
	snap := st.Snapshot()
	if snap.Statuses[1].State != StatePending {
		t.Errorf("Statuses[1].State = %q, want %q", snap.Statuses[1].State, StatePending)
	}
	if snap.Counters.Failed != 0 {
		t.Errorf("Failed = %d, want 0", snap.Counters.Failed)
	}

	if !st.SetStatus(newGen, 1, Status{State: StateComplete}) {
		t.Error("current-generation write refused")
	}

	// Clear also advances the generation.
	st.Clear()
	if st.SetStatus(newGen, 1, Status{State: StateFailed}) {
		t.Error("write applied after Clear")
	}
}

func TestStore_ResetForRetry(t *testing.T) {
	st := NewStore()
	gen := st.Init(batchOf(4, 10))

	st.SetStatus(gen, 1, Status{State: StateComplete})
	st.SetStatus(gen, 2, Status{State: StateFailed, Reason: "HTTP 404"})
	st.SetStatus(gen, 3, Status{State: StateFailed, Reason: "HTTP 500"})
	st.SetStatus(gen, 4, Status{State: StateSkipped})

	reset := st.ResetForRetry([]int64{1, 2, 3, 4})
	if len(reset) != 2 {
		t.Fatalf("reset %d ids, want 2", len(reset))
	}

	snap := st.Snapshot()
	if snap.Counters.Failed != 0 {
		t.Errorf("Failed = %d, want 0", snap.Counters.Failed)
	}
	if snap.Statuses[2].State != StatePending || snap.Statuses[3].State != StatePending {
		t.Error("failed tasks not reset to pending")
	}
	if snap.Statuses[1].State != StateComplete {
		t.Errorf("Statuses[1].State = %q, want %q (retry must not touch completed tasks)", snap.Statuses[1].State, StateComplete)
	}
	if snap.Statuses[4].State != StateSkipped {
		t.Errorf("Statuses[4].State = %q, want %q", snap.Statuses[4].State, StateSkipped)
	}
}

func TestStore_AggregateConsistency(t *testing.T) {
	st := NewStore()
	gen := st.Init(batchOf(5, 10))

	st.SetStatus(gen, 1, Status{State: StateDownloading})
	st.SetStatus(gen, 2, Status{State: StateComplete})
	st.SetStatus(gen, 3, Status{State: StateFailed, Reason: "x"})
	st.SetStatus(gen, 4, Status{State: StateSkipped})

	c := st.Snapshot().Counters
	sum := c.Active + c.Completed + c.Failed + c.Skipped + c.Cancelled + c.Pending()
	if sum != c.TotalQueued {
		t.Errorf("counter sum = %d, want %d", sum, c.TotalQueued)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
	if c.BytesDone > c.TotalExpectedBytes {
		t.Errorf("BytesDone %d exceeds TotalExpectedBytes %d", c.BytesDone, c.TotalExpectedBytes)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	st := NewStore()
	st.Init(batchOf(2, 0))

	snap := st.Snapshot()
	snap.Statuses[1] = Status{State: StateFailed, Reason: "mutated"}
	snap.Order[0] = 99

	fresh := st.Snapshot()
	if fresh.Statuses[1].State != StatePending {
		t.Error("mutating a snapshot leaked into the store")
	}
	if fresh.Order[0] != 1 {
		t.Error("mutating snapshot order leaked into the store")
	}
}

func TestStore_Clear(t *testing.T) {
	st := NewStore()
	gen := st.Init(batchOf(3, 10))
	st.SetStatus(gen, 1, Status{State: StateComplete})

	st.Clear()

	snap := st.Snapshot()
	if len(snap.Order) != 0 || len(snap.Statuses) != 0 {
		t.Error("Clear() left entries behind")
	}
	if snap.Counters != (Counters{}) {
		t.Errorf("Clear() left counters %+v", snap.Counters)
	}
}
