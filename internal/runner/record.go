package runner

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the terminal outcome of one tool invocation. Every record
// carries exactly one.
type Status int

const (
	StatusSuccess Status = iota
	StatusNonZeroExit
	StatusNotFound
	StatusTimedOut
	StatusPermissionDenied
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusSuccess:          "success",
	StatusNonZeroExit:      "non_zero_exit",
	StatusNotFound:         "not_found",
	StatusTimedOut:         "timed_out",
	StatusPermissionDenied: "permission_denied",
	StatusCancelled:        "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalJSON writes the status as its string name so report files stay
// readable without this package's enum values.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the string names written by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown execution status %q", name)
}

// ExecutionRecord is the outcome of one attempted tool invocation.
// Records are terminal the moment the runner produces them and are never
// mutated after being handed to the aggregator.
type ExecutionRecord struct {
	ToolID      string    `json:"tool_id"`
	Status      Status    `json:"status"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CommandLine []string  `json:"command_line,omitempty"`

	// ExitCode is set only when the process actually ran to completion.
	ExitCode *int `json:"exit_code,omitempty"`

	// Log paths are set only for run-and-capture tools; the files exist
	// on disk (possibly empty) whenever the fields are populated.
	StdoutLog string `json:"stdout_log,omitempty"`
	StderrLog string `json:"stderr_log,omitempty"`

	// OutputPreview holds the first bytes of captured stdout for batch
	// summaries. The full output lives in StdoutLog.
	OutputPreview string `json:"output_preview,omitempty"`

	// InstallHint carries the platform remediation string for
	// not-found and permission-denied outcomes.
	InstallHint string `json:"install_hint,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// Duration returns the wall-clock time the invocation took.
func (r ExecutionRecord) Duration() time.Duration {
	if r.EndTime.IsZero() || r.StartTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Failed reports whether the invocation ended in anything but success.
func (r ExecutionRecord) Failed() bool {
	return r.Status != StatusSuccess
}
