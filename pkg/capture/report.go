package capture

// Report aggregates the outcome of one capture session.
type Report struct {
	SessionID string `json:"session_id"`

	FrameBudget     int   `json:"frame_budget"`
	FramesProcessed int   `json:"frames_processed"`
	PacketsWritten  int   `json:"packets_written"`
	BytesWritten    int64 `json:"bytes_written"`

	FinalState string `json:"final_state"`
	OutputPath string `json:"output_path"`

	// Err is the first failure encountered, nil on a clean run.
	Err error `json:"-"`
}

// Success reports whether the run completed the full frame budget with
// no failures. A partial run is a failure even when the final flush
// went through.
func (r *Report) Success() bool {
	return r.Err == nil && r.FramesProcessed == r.FrameBudget
}
