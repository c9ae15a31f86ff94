package types

// Profile is the declarative bundle of tool definitions and interceptor
// policy loaded for one backend API.
type Profile struct {
	Name             string            `json:"name" yaml:"name"`
	Version          string            `json:"version,omitempty" yaml:"version,omitempty"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tools            []ToolDefinition  `json:"tools" yaml:"tools"`
	Interceptors     InterceptorConfig `json:"interceptors,omitempty" yaml:"interceptors,omitempty"`
	ParameterAliases map[string]string `json:"parameter_aliases,omitempty" yaml:"parameter_aliases,omitempty"`
}

// Tool returns the named tool definition.
func (p *Profile) Tool(name string) (*ToolDefinition, bool) {
	for i := range p.Tools {
		if p.Tools[i].Name == name {
			return &p.Tools[i], true
		}
	}
	return nil, false
}

// ToolDefinition declares one callable tool. Exactly one of Operations or
// Composite+Steps is set.
type ToolDefinition struct {
	Name           string                         `json:"name" yaml:"name"`
	Description    string                         `json:"description" yaml:"description"`
	Parameters     map[string]ParameterDefinition `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Operations     map[string]string              `json:"operations,omitempty" yaml:"operations,omitempty"`
	Composite      bool                           `json:"composite,omitempty" yaml:"composite,omitempty"`
	Steps          []CompositeStep                `json:"steps,omitempty" yaml:"steps,omitempty"`
	PartialResults bool                           `json:"partial_results,omitempty" yaml:"partial_results,omitempty"`
	Aliases        map[string]string              `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// IsComposite reports whether the tool runs a multi-step plan.
func (d *ToolDefinition) IsComposite() bool {
	return d.Composite
}

// ParameterDefinition describes one tool argument.
type ParameterDefinition struct {
	Type        SchemaType           `json:"type" yaml:"type"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool                 `json:"required,omitempty" yaml:"required,omitempty"`
	RequiredFor []string             `json:"required_for,omitempty" yaml:"required_for,omitempty"`
	Enum        []string             `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       *ParameterDefinition `json:"items,omitempty" yaml:"items,omitempty"`
	Default     any                  `json:"default,omitempty" yaml:"default,omitempty"`
}

// CompositeStep is one backend call inside a composite tool. StoreAs is the
// step's node id in the dependency graph.
type CompositeStep struct {
	Call      string         `json:"call" yaml:"call"`
	StoreAs   string         `json:"store_as" yaml:"store_as"`
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// AuthType selects how credentials are attached to outbound requests.
type AuthType string

const (
	AuthBearer       AuthType = "bearer"
	AuthQuery        AuthType = "query"
	AuthCustomHeader AuthType = "custom-header"
)

// ArrayFormat governs how array query parameters serialize.
type ArrayFormat string

const (
	ArrayFormatBrackets ArrayFormat = "brackets"
	ArrayFormatIndices  ArrayFormat = "indices"
	ArrayFormatRepeat   ArrayFormat = "repeat"
	ArrayFormatComma    ArrayFormat = "comma"
)

// RateLimitAction selects what happens when the client-side limit is hit.
type RateLimitAction string

const (
	RateLimitActionReject RateLimitAction = "reject"
	RateLimitActionWait   RateLimitAction = "wait"
)

// RateLimitStrategy selects the counting algorithm.
type RateLimitStrategy string

const (
	RateLimitStrategyFixedWindow   RateLimitStrategy = "fixed_window"
	RateLimitStrategySlidingWindow RateLimitStrategy = "sliding_window"
	RateLimitStrategyTokenBucket   RateLimitStrategy = "token_bucket"
)

// InterceptorConfig is the per-profile policy bag applied to every outbound call.
type InterceptorConfig struct {
	Auth        *AuthConfig      `json:"auth,omitempty" yaml:"auth,omitempty"`
	BaseURL     *BaseURLConfig   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	RateLimit   *RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	Retry       *RetryConfig     `json:"retry,omitempty" yaml:"retry,omitempty"`
	ArrayFormat ArrayFormat      `json:"array_format,omitempty" yaml:"array_format,omitempty"`
}

// AuthConfig declares credential injection. The credential is never stored:
// EnvVar names the environment variable read at call time.
type AuthConfig struct {
	Type       AuthType `json:"type" yaml:"type"`
	EnvVar     string   `json:"value_from_env" yaml:"value_from_env"`
	ParamName  string   `json:"query_param,omitempty" yaml:"query_param,omitempty"`
	HeaderName string   `json:"header_name,omitempty" yaml:"header_name,omitempty"`
}

// BaseURLConfig declares the backend base URL source.
type BaseURLConfig struct {
	EnvVar  string `json:"value_from_env,omitempty" yaml:"value_from_env,omitempty"`
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

// RateLimitConfig declares the client-side request budget.
type RateLimitConfig struct {
	MaxRequestsPerMinute int               `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	OnLimit              RateLimitAction   `json:"on_limit,omitempty" yaml:"on_limit,omitempty"`
	Strategy             RateLimitStrategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Backend              string            `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// RetryConfig declares the retry policy.
type RetryConfig struct {
	MaxAttempts   int   `json:"max_attempts" yaml:"max_attempts"`
	BackoffMs     []int `json:"backoff_ms,omitempty" yaml:"backoff_ms,omitempty"`
	RetryOnStatus []int `json:"retry_on_status,omitempty" yaml:"retry_on_status,omitempty"`
}
