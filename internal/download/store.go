package download

import "sync"

// Store is the shared status map for the current batch. It is mutated by
// every worker and read concurrently by the consumer, so every access
// goes through the mutex. Counter updates happen in the same critical
// section as the status write, so a snapshot can never observe a torn
// update for any single id.
//
// Writes carry the generation handed out by Init. A new batch reuses the
// same catalog ids, so workers of a replaced batch would otherwise land
// their late terminal writes in the new batch's entries; the generation
// check drops them instead.
type Store struct {
	mu       sync.Mutex
	gen      uint64
	statuses map[int64]Status
	order    []int64
	expected map[int64]int64
	counters Counters
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		statuses: make(map[int64]Status),
		expected: make(map[int64]int64),
	}
}

// Init resets the store for a new batch: order follows submission order,
// every status starts Pending, counters are zeroed and seeded from the
// batch size and the sum of expected sizes. It returns the new batch
// generation; every subsequent write must carry it.
func (st *Store) Init(tasks []Task) uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.gen++
	st.statuses = make(map[int64]Status, len(tasks))
	st.expected = make(map[int64]int64, len(tasks))
	st.order = make([]int64, 0, len(tasks))
	st.counters = Counters{TotalQueued: len(tasks)}

	for _, t := range tasks {
		st.order = append(st.order, t.ID)
		st.statuses[t.ID] = Status{State: StatePending}
		st.expected[t.ID] = t.ExpectedSize
		st.counters.TotalExpectedBytes += t.ExpectedSize
	}
	return st.gen
}

// Generation returns the current batch generation.
func (st *Store) Generation() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gen
}

// SetStatus atomically replaces the entry for id and applies counter
// deltas. Writes are refused, returning false, when gen is stale, when
// id is unknown, or when the entry already reached a terminal state.
// That makes a late write from a worker of a replaced or dismissed batch
// harmless.
func (st *Store) SetStatus(gen uint64, id int64, status Status) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if gen != st.gen {
		return false
	}
	old, ok := st.statuses[id]
	if !ok || old.State.Terminal() {
		return false
	}

	if old.State == StateDownloading && status.State != StateDownloading {
		st.counters.Active--
	}
	if old.State != StateDownloading && status.State == StateDownloading {
		st.counters.Active++
	}

	switch status.State {
	case StateComplete:
		st.counters.Completed++
		st.counters.BytesDone += st.expected[id]
	case StateSkipped:
		st.counters.Skipped++
		st.counters.BytesDone += st.expected[id]
	case StateCancelled:
		st.counters.Cancelled++
	case StateFailed:
		st.counters.Failed++
	}

	st.statuses[id] = status
	return true
}

// Get returns the current status for id.
func (st *Store) Get(id int64) (Status, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	status, ok := st.statuses[id]
	return status, ok
}

// Snapshot returns a consistent deep copy of order, statuses and
// counters for rendering.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := Snapshot{
		Order:    make([]int64, len(st.order)),
		Statuses: make(map[int64]Status, len(st.statuses)),
		Counters: st.counters,
	}
	copy(snap.Order, st.order)
	for id, status := range st.statuses {
		snap.Statuses[id] = status
	}
	return snap
}

// ResetForRetry moves the given ids back to Pending, provided their
// current state is Failed, and decrements the failed counter by the
// number actually reset. Ids in any other state are left untouched.
// The bytes attributed to previous completions are kept; a retried task
// contributes again only when it completes. Returns the ids reset.
func (st *Store) ResetForRetry(ids []int64) []int64 {
	st.mu.Lock()
	defer st.mu.Unlock()

	reset := make([]int64, 0, len(ids))
	for _, id := range ids {
		if st.statuses[id].State != StateFailed {
			continue
		}
		st.statuses[id] = Status{State: StatePending}
		st.counters.Failed--
		reset = append(reset, id)
	}
	return reset
}

// Clear empties the store after the consumer dismisses the batch view.
// The generation advances so any straggling worker writes are refused.
func (st *Store) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.gen++
	st.statuses = make(map[int64]Status)
	st.expected = make(map[int64]int64)
	st.order = nil
	st.counters = Counters{}
}
