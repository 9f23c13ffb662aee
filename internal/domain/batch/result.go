package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of processing one item in a batch operation.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed batch result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Summary aggregates per-item results of one bulk write.
type Summary struct {
	Succeeded int
	Failed    []Result
}

// Summarize folds per-item results into a Summary, keeping only failures.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		if r.Status() == StatusOK {
			s.Succeeded++
		} else {
			s.Failed = append(s.Failed, r)
		}
	}
	return s
}

// AllSucceeded reports whether the batch had no failed items.
func (s Summary) AllSucceeded() bool { return len(s.Failed) == 0 }

// Merge accumulates another summary into this one.
func (s *Summary) Merge(other Summary) {
	s.Succeeded += other.Succeeded
	s.Failed = append(s.Failed, other.Failed...)
}
