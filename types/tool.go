package types

import (
	"encoding/json"
	"time"
)

// ToolSchema defines a tool's interface as declared to the protocol layer.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolInputSchema is the object schema generated from a tool definition.
type ToolInputSchema struct {
	Type       SchemaType             `json:"type"`
	Properties map[string]*SchemaInfo `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// StepStatus describes the outcome of one composite step.
type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusError   StepStatus = "error"
	StepStatusSkipped StepStatus = "skipped"
)

// SkippedDueToDependencyFailure is the reason recorded for a step whose
// dependency did not succeed.
const SkippedDueToDependencyFailure = "skipped-due-to-dependency-failure"

// StepResult is the stored outcome of a composite step, keyed by store_as.
type StepResult struct {
	Status     StepStatus    `json:"status"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Data       any           `json:"data,omitempty"`
	Error      string        `json:"error,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`

	raw []byte
}

// Raw returns the undecoded response body of a successful step.
func (r *StepResult) Raw() []byte {
	return r.raw
}

// SetRaw records the undecoded response body.
func (r *StepResult) SetRaw(b []byte) {
	r.raw = b
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	Tool         string                 `json:"tool"`
	Operation    string                 `json:"operation,omitempty"`
	Status       int                    `json:"status,omitempty"`
	Body         any                    `json:"body,omitempty"`
	Steps        map[string]*StepResult `json:"steps,omitempty"`
	IsError      bool                   `json:"is_error"`
	Partial      bool                   `json:"partial,omitempty"`
	Duration     time.Duration          `json:"duration"`
	InvocationID string                 `json:"invocation_id,omitempty"`
}
