package models

// Metrics carries size accounting. Both values are zero when an operation does not
// measure sizes.
type Metrics struct {
	OriginalBytes int64 `json:"originalBytes,omitempty"`
	NewBytes      int64 `json:"newBytes,omitempty"`
}

// Add accumulates m2 into m.
func (m *Metrics) Add(m2 Metrics) {
	m.OriginalBytes += m2.OriginalBytes
	m.NewBytes += m2.NewBytes
}

// Reduction is the saved share of OriginalBytes in percent. It is negative when the output
// grew.
func (m Metrics) Reduction() float64 {
	if m.OriginalBytes <= 0 {
		return 0
	}
	return (1 - float64(m.NewBytes)/float64(m.OriginalBytes)) * 100
}

// FileResult is one entry of a batch operation's per-file trail.
type FileResult struct {
	Input   string    `json:"input"`
	Output  string    `json:"output,omitempty"`
	Success bool      `json:"success"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Error   string    `json:"error,omitempty"`
	Metrics Metrics   `json:"metrics"`
}

// Result is the outcome of one pipeline operation.
type Result struct {
	Success bool         `json:"success"`
	Kind    ErrorKind    `json:"kind,omitempty"`
	Err     error        `json:"-"`
	Error   string       `json:"error,omitempty"`
	Metrics Metrics      `json:"metrics"`
	Outputs []string     `json:"outputs,omitempty"`
	Files   []FileResult `json:"files,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(metrics Metrics, outputs ...string) Result {
	return Result{Success: true, Metrics: metrics, Outputs: outputs}
}

// Failed builds a failed Result classified by KindOf.
func Failed(err error) Result {
	r := Result{Kind: KindOf(err), Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
