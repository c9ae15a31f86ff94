package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/toolbridge/types"
	"github.com/BaSui01/toolbridge/workflow"
)

// LoadFile reads, decodes and validates a profile file.
func LoadFile(path string) (*types.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return Load(data)
}

// Load decodes and validates a profile document.
func Load(data []byte) (*types.Profile, error) {
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode parses YAML (or JSON) into a Profile without semantic checks.
// Unknown keys are rejected so typos in policy blocks do not pass silently.
func Decode(data []byte) (*types.Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p types.Profile
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.NewError(types.ErrProfileLogic, "profile is empty")
		}
		return nil, types.NewError(types.ErrProfileLogic, "failed to decode profile").WithCause(err)
	}
	return &p, nil
}

// Validate runs the semantic checks that make a profile loadable. All
// violations are collected; the first DAG failure is kept as the cause.
func Validate(p *types.Profile) error {
	v := &validation{}

	if len(p.Tools) == 0 {
		v.add("profile declares no tools")
	}
	seen := make(map[string]bool, len(p.Tools))
	for i := range p.Tools {
		def := &p.Tools[i]
		if def.Name == "" {
			v.add("tool #%d has no name", i)
			continue
		}
		if seen[def.Name] {
			v.add("duplicate tool name %q", def.Name)
		}
		seen[def.Name] = true
		v.tool(def)
	}
	v.interceptors(&p.Interceptors)

	return v.err()
}

type validation struct {
	problems []string
	cause    error
}

func (v *validation) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validation) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	e := types.NewError(types.ErrProfileLogic, "invalid profile: "+strings.Join(v.problems, "; ")).
		WithDetail("problems", v.problems)
	if v.cause != nil {
		e = e.WithCause(v.cause)
	}
	return e
}

func (v *validation) tool(def *types.ToolDefinition) {
	hasOps := len(def.Operations) > 0
	switch {
	case def.Composite && hasOps:
		v.add("tool %q declares both operations and composite steps", def.Name)
	case !def.Composite && !hasOps:
		v.add("tool %q declares neither operations nor composite steps", def.Name)
	case !def.Composite && len(def.Steps) > 0:
		v.add("tool %q has steps but is not marked composite", def.Name)
	case def.Composite && len(def.Steps) == 0:
		v.add("composite tool %q has no steps", def.Name)
	}
	if def.PartialResults && !def.Composite {
		v.add("tool %q sets partial_results but is not composite", def.Name)
	}

	if def.Composite && len(def.Steps) > 0 {
		for _, s := range def.Steps {
			if strings.TrimSpace(s.Call) == "" {
				v.add("tool %q step %q has no call target", def.Name, s.StoreAs)
			}
		}
		if _, err := workflow.TopologicalSort(def.Steps); err != nil {
			e, _ := types.AsError(err)
			v.add("tool %q: %s", def.Name, e.Message)
			if v.cause == nil {
				v.cause = err
			}
		}
	}

	names := make([]string, 0, len(def.Parameters))
	for name := range def.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	actions := actionValues(def)
	for _, name := range names {
		param := def.Parameters[name]
		if !validType(param.Type) {
			v.add("tool %q parameter %q has unsupported type %q", def.Name, name, param.Type)
		}
		if len(param.RequiredFor) > 0 && param.Required {
			v.add("tool %q parameter %q is both required and required_for", def.Name, name)
		}
		for _, action := range param.RequiredFor {
			if !slices.Contains(actions, action) {
				v.add("tool %q parameter %q: required_for references unknown action %q", def.Name, name, action)
			}
		}
	}
}

// actionValues returns the declared action enum. Without an enum, every
// operation key counts, and so does each "_"-separated prefix of a key, so
// "create_pet" also accepts "create" for "{action}_{resource_type}" dispatch.
func actionValues(def *types.ToolDefinition) []string {
	if p, ok := def.Parameters["action"]; ok && len(p.Enum) > 0 {
		return p.Enum
	}
	var out []string
	for k := range def.Operations {
		out = append(out, k)
		for i := 0; i < len(k); i++ {
			if k[i] == '_' && i > 0 {
				out = append(out, k[:i])
			}
		}
	}
	return out
}

func validType(t types.SchemaType) bool {
	switch t {
	case types.SchemaTypeString, types.SchemaTypeNumber, types.SchemaTypeInteger,
		types.SchemaTypeBoolean, types.SchemaTypeObject, types.SchemaTypeArray:
		return true
	}
	return false
}

func (v *validation) interceptors(cfg *types.InterceptorConfig) {
	if a := cfg.Auth; a != nil {
		if a.EnvVar == "" {
			v.add("auth.value_from_env is required")
		}
		switch a.Type {
		case types.AuthBearer:
		case types.AuthQuery:
			if a.ParamName == "" {
				v.add("auth type query requires query_param")
			}
		case types.AuthCustomHeader:
			if a.HeaderName == "" {
				v.add("auth type custom-header requires header_name")
			}
		default:
			v.add("unsupported auth type %q", a.Type)
		}
	}

	if b := cfg.BaseURL; b != nil && b.EnvVar == "" && b.Default == "" {
		v.add("base_url needs value_from_env or default")
	}

	if r := cfg.RateLimit; r != nil {
		if r.MaxRequestsPerMinute <= 0 {
			v.add("rate_limit.max_requests_per_minute must be positive")
		}
		switch r.OnLimit {
		case "", types.RateLimitActionReject, types.RateLimitActionWait:
		default:
			v.add("unsupported rate_limit.on_limit %q", r.OnLimit)
		}
		switch r.Strategy {
		case "", types.RateLimitStrategyFixedWindow, types.RateLimitStrategySlidingWindow, types.RateLimitStrategyTokenBucket:
		default:
			v.add("unsupported rate_limit.strategy %q", r.Strategy)
		}
		switch r.Backend {
		case "", "memory", "redis":
		default:
			v.add("unsupported rate_limit.backend %q", r.Backend)
		}
	}

	if r := cfg.Retry; r != nil {
		if r.MaxAttempts < 1 {
			v.add("retry.max_attempts must be at least 1")
		}
		for _, ms := range r.BackoffMs {
			if ms < 0 {
				v.add("retry.backoff_ms must not be negative")
				break
			}
		}
		for _, status := range r.RetryOnStatus {
			if status < 100 || status > 599 {
				v.add("retry.retry_on_status contains invalid status %d", status)
			}
		}
	}

	switch cfg.ArrayFormat {
	case "", types.ArrayFormatBrackets, types.ArrayFormatIndices, types.ArrayFormatRepeat, types.ArrayFormatComma:
	default:
		v.add("unsupported array_format %q", cfg.ArrayFormat)
	}
}
