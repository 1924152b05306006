package harness

// Trace event kinds.
const (
	EventEnroll    = "enroll"
	EventSetStatus = "set_status"
	EventAward     = "award"
	EventNotify    = "notify"
)

// TraceEvent is one recorded flow step or emitted change event.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Kind    string         `json:"kind"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome map[string]any `json:"outcome,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds flow steps and change events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures. Empty if Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(kind string, args, outcome map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Kind:    kind,
		Args:    args,
		Outcome: outcome,
	})
}
