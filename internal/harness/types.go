package harness

// StepRecord is the observable outcome of one step. Fields irrelevant to
// the operation stay empty and are left out of the canonical trace.
type StepRecord struct {
	Op            string `json:"op"`
	Domain        string `json:"domain,omitempty"`
	CorrelationID int64  `json:"id,omitempty"`
	Data          string `json:"data,omitempty"`
	Extra         string `json:"extra,omitempty"`
	Error         string `json:"error,omitempty"`
	Count         int    `json:"count,omitempty"`
	OK            *bool  `json:"ok,omitempty"`
}

// DeliveryRecord is one receiver invocation. Receiver is the generation of
// the receiver that ran: 1 for the initial registration, incremented by
// every reregister step for the domain.
type DeliveryRecord struct {
	Domain        string `json:"domain"`
	Receiver      int    `json:"receiver"`
	CorrelationID int64  `json:"id"`
	Data          string `json:"data"`
	Extra         string `json:"extra"`
	Error         string `json:"error,omitempty"`
}

// CallRecord is a journaled call without its timestamps.
type CallRecord struct {
	CorrelationID int64  `json:"id"`
	Domain        string `json:"domain"`
	Mode          string `json:"mode"`
	Data          string `json:"data"`
	Extra         string `json:"extra"`
	State         string `json:"state"`
	ResponseData  string `json:"response_data"`
	ResponseExtra string `json:"response_extra"`
	ErrorCode     string `json:"error_code"`
}

// DropRecord is a journaled drop without its timestamp.
type DropRecord struct {
	CorrelationID int64  `json:"id"`
	Domain        string `json:"domain"`
	Reason        string `json:"reason"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Trace is everything the scenario produced.
	Trace TraceSnapshot `json:"trace"`

	// MaxConcurrentSync is the editor stub's high-water mark of overlapping
	// sync calls.
	MaxConcurrentSync int `json:"max_concurrent_sync"`
}

// NewResult creates a new passing result.
func NewResult(name, session string) *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Trace: TraceSnapshot{
			ScenarioName: name,
			Session:      session,
			Steps:        []StepRecord{},
			Deliveries:   []DeliveryRecord{},
			Calls:        []CallRecord{},
			Drops:        []DropRecord{},
		},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
