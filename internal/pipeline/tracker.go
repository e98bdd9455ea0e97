package pipeline

import (
	"sync"
	"time"

	"github.com/seenimoa/newsentiment/pkg/models"
)

// ItemStatus is the live state of one WorkItem inside a run.
type ItemStatus struct {
	Key        models.ItemKey   `json:"key"`
	CompanyID  string           `json:"company_id"`
	Date       string           `json:"date"`
	State      models.ItemState `json:"state"`
	Outcome    models.Outcome   `json:"outcome,omitempty"`
	NewsCount  int              `json:"news_count"`
	Error      string           `json:"error,omitempty"`
	FromResume bool             `json:"from_resume,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Event is published on every state change.
type Event struct {
	Type     string           `json:"type"` // "run_started", "item", "quota", "cancelled", "run_finished"
	Item     *ItemStatus      `json:"item,omitempty"`
	Progress models.Progress  `json:"progress"`
	Status   models.RunStatus `json:"status,omitempty"`
}

// Tracker records per-item state for a run and fans changes out to
// listeners. The zero value is not usable; call NewTracker.
type Tracker struct {
	mu        sync.RWMutex
	progress  models.Progress
	items     map[models.ItemKey]*ItemStatus
	order     []models.ItemKey
	listeners []func(Event)
	now       func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{items: make(map[models.ItemKey]*ItemStatus), now: time.Now}
}

// OnEvent registers fn to receive every event. fn is called synchronously
// under the tracker's lock and must not block.
func (t *Tracker) OnEvent(fn func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Progress returns a snapshot of the run counters.
func (t *Tracker) Progress() models.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// Items returns every item status in enumeration order.
func (t *Tracker) Items() []ItemStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ItemStatus, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.items[k])
	}
	return out
}

// Item returns the status of one item.
func (t *Tracker) Item(key models.ItemKey) (ItemStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.items[key]
	if !ok {
		return ItemStatus{}, false
	}
	return *st, true
}

// Pending returns the items that were never resolved.
func (t *Tracker) Pending() []models.ItemKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []models.ItemKey
	for _, k := range t.order {
		if t.items[k].State != models.StateDone {
			out = append(out, k)
		}
	}
	return out
}

// start resets the tracker for a new run.
func (t *Tracker) start(runID string, items []models.WorkItem, resumed map[models.ItemKey]models.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.items = make(map[models.ItemKey]*ItemStatus, len(items))
	t.order = t.order[:0]
	t.progress = models.Progress{RunID: runID, Total: len(items), StartedAt: now, UpdatedAt: now}
	for _, it := range items {
		st := &ItemStatus{Key: it.Key(), CompanyID: it.CompanyID, Date: it.Day(), State: models.StatePending, UpdatedAt: now}
		if outcome, ok := resumed[it.Key()]; ok {
			st.State = models.StateDone
			st.Outcome = outcome
			st.FromResume = true
			t.progress.Skipped++
		} else {
			t.progress.Pending++
		}
		t.items[st.Key] = st
		t.order = append(t.order, st.Key)
	}
	t.emit(Event{Type: "run_started"})
}

// set moves an item to state. Done items also carry outcome and error.
func (t *Tracker) set(key models.ItemKey, state models.ItemState, outcome models.Outcome, newsCount int, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.items[key]
	if !ok {
		return
	}
	prev := st.State
	st.State = state
	st.Outcome = outcome
	st.NewsCount = newsCount
	st.Error = errMsg
	st.UpdatedAt = t.now()

	t.count(prev, -1, outcome)
	t.count(state, +1, outcome)
	t.progress.UpdatedAt = st.UpdatedAt

	cp := *st
	t.emit(Event{Type: "item", Item: &cp})
}

func (t *Tracker) count(state models.ItemState, delta int, outcome models.Outcome) {
	switch state {
	case models.StatePending:
		t.progress.Pending += delta
	case models.StateFetching, models.StateScoring:
		t.progress.InFlight += delta
	case models.StateDone:
		if delta > 0 {
			t.progress.Done++
			if outcome == models.OutcomeFetchFailed || outcome == models.OutcomePartiallyScored {
				t.progress.Failed++
			}
		}
	}
}

func (t *Tracker) quotaHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress.QuotaHit {
		return
	}
	t.progress.QuotaHit = true
	t.emit(Event{Type: "quota"})
}

func (t *Tracker) cancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress.Cancelled {
		return
	}
	t.progress.Cancelled = true
	t.emit(Event{Type: "cancelled"})
}

func (t *Tracker) finish(status models.RunStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.UpdatedAt = t.now()
	t.emit(Event{Type: "run_finished", Status: status})
}

// emit must be called with t.mu held.
func (t *Tracker) emit(ev Event) {
	ev.Progress = t.progress
	for _, fn := range t.listeners {
		fn(ev)
	}
}
