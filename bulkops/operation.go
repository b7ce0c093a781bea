package bulkops

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Operation phases, in execution order.
const (
	PhaseFetch     = "fetch"
	PhaseAggregate = "aggregate"
	PhaseRewrite   = "rewrite"
	PhaseDone      = "done"
)

// AllPhases returns the executable phases in run order.
func AllPhases() []string {
	return []string{PhaseFetch, PhaseAggregate, PhaseRewrite}
}

// ValidPhase reports whether name is an executable phase that a request may
// ask for.
func ValidPhase(name string) bool {
	return name == PhaseFetch || name == PhaseAggregate || name == PhaseRewrite
}

const maxLogLines = 200

// Counters accumulate per-operation progress numbers. Cached counts sources
// that were already in the store; Skipped counts sources dropped for failures
// or unusable content.
type Counters struct {
	ArticlesFetched   int `json:"articles_fetched"`
	ArticlesCached    int `json:"articles_cached"`
	ArticlesSkipped   int `json:"articles_skipped"`
	ArticlesRewritten int `json:"articles_rewritten"`
	TagsApplied       int `json:"tags_applied"`
}

// Operation tracks one bulk run. All mutation goes through methods so the
// status endpoint can snapshot it while the runner is working.
type Operation struct {
	mu sync.Mutex

	id          string
	languages   []string
	phases      []string
	status      string
	phase       string
	startedAt   time.Time
	completedAt *time.Time
	errMsg      string
	counters    Counters
	logs        []string

	now func() time.Time
}

// NewOperation creates a running operation for the given languages and phase
// subset. An empty subset means a full run.
func NewOperation(languages, phases []string) *Operation {
	normalized := normalizePhases(phases)
	op := &Operation{
		id:        uuid.NewString(),
		languages: append([]string(nil), languages...),
		phases:    normalized,
		status:    StatusRunning,
		phase:     normalized[0],
		now:       time.Now,
	}
	op.startedAt = op.now().UTC()
	return op
}

// normalizePhases dedupes the requested phases and puts them in run order,
// dropping unknown names. Empty input expands to all phases.
func normalizePhases(phases []string) []string {
	requested := make(map[string]bool, len(phases))
	for _, p := range phases {
		requested[p] = true
	}
	ordered := make([]string, 0, len(phases))
	for _, p := range AllPhases() {
		if requested[p] {
			ordered = append(ordered, p)
		}
	}
	if len(ordered) == 0 {
		return AllPhases()
	}
	return ordered
}

// ID returns the operation's identifier.
func (o *Operation) ID() string { return o.id }

// HasPhase reports whether the phase was requested for this run.
func (o *Operation) HasPhase(phase string) bool {
	for _, p := range o.phases {
		if p == phase {
			return true
		}
	}
	return false
}

// RequestedPhases returns the phases this run executes, in order.
func (o *Operation) RequestedPhases() []string {
	return append([]string(nil), o.phases...)
}

// Logf appends one timestamped line to the operation log, keeping only the
// most recent maxLogLines.
func (o *Operation) Logf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	line := fmt.Sprintf("[%s] %s", o.now().UTC().Format("15:04:05"), fmt.Sprintf(format, args...))
	o.logs = append(o.logs, line)
	if len(o.logs) > maxLogLines {
		o.logs = o.logs[len(o.logs)-maxLogLines:]
	}
}

// SetPhase advances the operation to the named phase.
func (o *Operation) SetPhase(phase string) {
	o.mu.Lock()
	o.phase = phase
	o.mu.Unlock()
	o.Logf("=== phase: %s ===", phase)
}

// AddFetched bumps the fetched-article counter.
func (o *Operation) AddFetched(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.ArticlesFetched += n
}

// AddCached bumps the already-stored counter.
func (o *Operation) AddCached(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.ArticlesCached += n
}

// AddSkipped bumps the skipped-article counter.
func (o *Operation) AddSkipped(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.ArticlesSkipped += n
}

// AddRewritten bumps the rewritten-article counter.
func (o *Operation) AddRewritten(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.ArticlesRewritten += n
}

// AddTags bumps the applied-tag counter.
func (o *Operation) AddTags(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.TagsApplied += n
}

// Complete marks the operation finished.
func (o *Operation) Complete() {
	o.mu.Lock()
	o.status = StatusCompleted
	o.phase = PhaseDone
	done := o.now().UTC()
	o.completedAt = &done
	o.mu.Unlock()
	o.Logf("operation completed")
}

// Fail marks the operation failed with the given error.
func (o *Operation) Fail(err error) {
	o.mu.Lock()
	o.status = StatusFailed
	o.errMsg = err.Error()
	done := o.now().UTC()
	o.completedAt = &done
	o.mu.Unlock()
	o.Logf("operation failed: %v", err)
}

// Snapshot is a point-in-time copy of an operation, safe to serialize while
// the run continues.
type Snapshot struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Phase           string     `json:"phase"`
	Languages       []string   `json:"languages"`
	RequestedPhases []string   `json:"requested_phases"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	Counters        Counters   `json:"counters"`
	Logs            []string   `json:"logs"`
}

// Snapshot copies the operation's current state.
func (o *Operation) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		ID:              o.id,
		Status:          o.status,
		Phase:           o.phase,
		Languages:       append([]string(nil), o.languages...),
		RequestedPhases: append([]string(nil), o.phases...),
		StartedAt:       o.startedAt,
		CompletedAt:     o.completedAt,
		Error:           o.errMsg,
		Counters:        o.counters,
		Logs:            append([]string(nil), o.logs...),
	}
}

// Store keeps operations addressable by ID for the status endpoints.
type Store interface {
	Put(op *Operation)
	Get(id string) (*Operation, bool)
	List() []*Operation
}

// MemoryStore is the in-process Store used by the server.
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*Operation)}
}

func (s *MemoryStore) Put(op *Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID()] = op
}

func (s *MemoryStore) Get(id string) (*Operation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	return op, ok
}

// List returns operations newest first.
func (s *MemoryStore) List() []*Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ops := make([]*Operation, 0, len(s.ops))
	for _, op := range s.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Snapshot().StartedAt.After(ops[j].Snapshot().StartedAt)
	})
	return ops
}
