package strategy

// QTable maps state keys to per-action values and visit counters. It is not
// internally synchronized; the Selector serializes all access behind its own
// lock.
type QTable struct {
	values map[string]map[string]float64
	visits map[string]map[string]int
}

// NewQTable creates an empty table.
func NewQTable() *QTable {
	return &QTable{
		values: make(map[string]map[string]float64),
		visits: make(map[string]map[string]int),
	}
}

// Get returns the value for (state, action); unvisited pairs are 0.
func (t *QTable) Get(stateKey, actionKey string) float64 {
	if row, ok := t.values[stateKey]; ok {
		return row[actionKey]
	}
	return 0
}

// Set stores the value for (state, action).
func (t *QTable) Set(stateKey, actionKey string, value float64) {
	row, ok := t.values[stateKey]
	if !ok {
		row = make(map[string]float64)
		t.values[stateKey] = row
	}
	row[actionKey] = value
}

// Visit increments the visit counter for (state, action).
func (t *QTable) Visit(stateKey, actionKey string) {
	row, ok := t.visits[stateKey]
	if !ok {
		row = make(map[string]int)
		t.visits[stateKey] = row
	}
	row[actionKey]++
}

// Visits returns the visit count for (state, action).
func (t *QTable) Visits(stateKey, actionKey string) int {
	if row, ok := t.visits[stateKey]; ok {
		return row[actionKey]
	}
	return 0
}

// StateVisits returns the total visit count across all actions of a state.
func (t *QTable) StateVisits(stateKey string) int {
	total := 0
	for _, n := range t.visits[stateKey] {
		total += n
	}
	return total
}

// MaxValue returns max_a Q[state][a] over the given candidate actions.
// An empty candidate list yields 0, the value of an unexplored state.
func (t *QTable) MaxValue(stateKey string, actions []QAction) float64 {
	best := 0.0
	first := true
	for _, a := range actions {
		v := t.Get(stateKey, a.Key())
		if first || v > best {
			best = v
			first = false
		}
	}
	if first {
		return 0
	}
	return best
}

// States returns the number of distinct states seen so far.
func (t *QTable) States() int {
	return len(t.values)
}

// Snapshot is the serializable form of a QTable plus selector progress.
// It is what the checkpoint store persists and restores.
type Snapshot struct {
	Values      map[string]map[string]float64
	Visits      map[string]map[string]int
	Epsilon     float64
	UpdateCount int64
}

// snapshot deep-copies the table into a Snapshot.
func (t *QTable) snapshot() Snapshot {
	snap := Snapshot{
		Values: make(map[string]map[string]float64, len(t.values)),
		Visits: make(map[string]map[string]int, len(t.visits)),
	}
	for state, row := range t.values {
		copied := make(map[string]float64, len(row))
		for action, v := range row {
			copied[action] = v
		}
		snap.Values[state] = copied
	}
	for state, row := range t.visits {
		copied := make(map[string]int, len(row))
		for action, n := range row {
			copied[action] = n
		}
		snap.Visits[state] = copied
	}
	return snap
}

// restore replaces the table contents from a Snapshot.
func (t *QTable) restore(snap Snapshot) {
	t.values = make(map[string]map[string]float64, len(snap.Values))
	t.visits = make(map[string]map[string]int, len(snap.Visits))
	for state, row := range snap.Values {
		copied := make(map[string]float64, len(row))
		for action, v := range row {
			copied[action] = v
		}
		t.values[state] = copied
	}
	for state, row := range snap.Visits {
		copied := make(map[string]int, len(row))
		for action, n := range row {
			copied[action] = n
		}
		t.visits[state] = copied
	}
}
