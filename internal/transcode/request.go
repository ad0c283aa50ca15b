package transcode

import (
	"encoding/json"
	"time"

	"media-transcoder/internal/encode"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/probe"
)

// Request asks for one or more renditions of a single input.
type Request struct {
	Input   probe.InputHandle `json:"input"`
	Presets []string          `json:"presets"`
	// Parallel runs presets concurrently on as many admission slots as
	// the request can get. The default is one preset at a time.
	Parallel bool `json:"parallel"`
	// FailFast reports every preset after the first failure as cancelled
	// instead of running it.
	FailFast bool `json:"failFast"`
}

func (r Request) mode() string {
	if r.Parallel {
		return "parallel"
	}
	return "sequential"
}

// resolve validates the preset list. It allocates nothing.
func (r Request) resolve(registry *presets.Registry) ([]presets.Preset, error) {
	if len(r.Presets) == 0 {
		return nil, failure.New(failure.CodeValidation, "transcode", "no presets requested")
	}

	seen := make(map[string]bool, len(r.Presets))
	resolved := make([]presets.Preset, 0, len(r.Presets))
	for _, name := range r.Presets {
		if seen[name] {
			return nil, failure.Errorf(failure.CodeValidation, "transcode", "preset %q requested twice", name)
		}
		seen[name] = true

		p, err := registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// Outcome is the final state of one preset.
type Outcome struct {
	Preset     string
	State      encode.State
	OutputPath string
	Metadata   *probe.Metadata
	Elapsed    time.Duration
	Err        *failure.Error
}

type outcomeJSON struct {
	Preset     string          `json:"preset"`
	State      encode.State    `json:"state"`
	OutputPath string          `json:"outputPath,omitempty"`
	Metadata   *probe.Metadata `json:"metadata,omitempty"`
	ElapsedMs  int64           `json:"elapsedMs"`
	Code       failure.Code    `json:"code,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// MarshalJSON flattens Err into a code and a message.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Preset:     o.Preset,
		State:      o.State,
		OutputPath: o.OutputPath,
		Metadata:   o.Metadata,
		ElapsedMs:  o.Elapsed.Milliseconds(),
	}
	if o.Err != nil {
		out.Code = o.Err.Code
		out.Error = o.Err.Detail()
	}
	return json.Marshal(out)
}

// Result lists one Outcome per requested preset, in request order.
type Result struct {
	RequestID string    `json:"requestId"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Completed returns the number of presets that produced output.
func (r Result) Completed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == encode.StateCompleted {
			n++
		}
	}
	return n
}

// FirstError returns the failure of the first preset that did not
// complete, or nil.
func (r Result) FirstError() *failure.Error {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}
