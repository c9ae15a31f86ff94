package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/toolbridge/types"
)

const petsProfile = `
name: petstore
version: "1"
interceptors:
  auth:
    type: bearer
    value_from_env: PETSTORE_TOKEN
  base_url:
    value_from_env: PETSTORE_URL
    default: https://api.example.com
  rate_limit:
    max_requests_per_minute: 60
    on_limit: wait
  retry:
    max_attempts: 3
    backoff_ms: [100, 200]
    retry_on_status: [429, 503]
  array_format: comma
tools:
  - name: manage_pets
    description: Manage pets
    parameters:
      action:
        type: string
        required: true
        enum: [list, get, create]
      petId:
        type: string
        required_for: [get]
      tags:
        type: array
        items:
          type: string
    operations:
      list: listPets
      get: getPet
      create: createPet
  - name: pet_report
    description: Pet with owner
    composite: true
    partial_results: true
    parameters:
      petId:
        type: string
        required: true
    steps:
      - call: getPet
        store_as: pet
        params:
          petId: "{{args.petId}}"
      - call: GET /owners/{ownerId}
        store_as: owner
        depends_on: [pet]
`

func TestLoad(t *testing.T) {
	p, err := Load([]byte(petsProfile))
	require.NoError(t, err)

	assert.Equal(t, "petstore", p.Name)
	require.Len(t, p.Tools, 2)

	tool, ok := p.Tool("manage_pets")
	require.True(t, ok)
	assert.Equal(t, "getPet", tool.Operations["get"])
	assert.Equal(t, []string{"get"}, tool.Parameters["petId"].RequiredFor)
	assert.Equal(t, types.SchemaTypeString, tool.Parameters["tags"].Items.Type)

	report, ok := p.Tool("pet_report")
	require.True(t, ok)
	assert.True(t, report.IsComposite())
	assert.True(t, report.PartialResults)
	assert.Equal(t, []string{"pet"}, report.Steps[1].DependsOn)
	assert.Equal(t, "{{args.petId}}", report.Steps[0].Params["petId"])

	ic := p.Interceptors
	require.NotNil(t, ic.Auth)
	assert.Equal(t, types.AuthBearer, ic.Auth.Type)
	assert.Equal(t, types.RateLimitActionWait, ic.RateLimit.OnLimit)
	assert.Equal(t, []int{100, 200}, ic.Retry.BackoffMs)
	assert.Equal(t, types.ArrayFormatComma, ic.ArrayFormat)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(petsProfile), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "petstore", p.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte("name: x\ntools: []\nretries: 3\n"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProfileLogic))
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProfileLogic))
}

func simpleTool(name string) types.ToolDefinition {
	return types.ToolDefinition{
		Name:       name,
		Operations: map[string]string{"get": "getPet"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile types.Profile
		want    string
	}{
		{
			name:    "no tools",
			profile: types.Profile{},
			want:    "profile declares no tools",
		},
		{
			name:    "duplicate tool",
			profile: types.Profile{Tools: []types.ToolDefinition{simpleTool("a"), simpleTool("a")}},
			want:    `duplicate tool name "a"`,
		},
		{
			name:    "unnamed tool",
			profile: types.Profile{Tools: []types.ToolDefinition{{Operations: map[string]string{"x": "y"}}}},
			want:    "tool #0 has no name",
		},
		{
			name: "operations and composite",
			profile: types.Profile{Tools: []types.ToolDefinition{{
				Name:       "both",
				Operations: map[string]string{"get": "getPet"},
				Composite:  true,
				Steps:      []types.CompositeStep{{Call: "getPet", StoreAs: "pet"}},
			}}},
			want: `tool "both" declares both operations and composite steps`,
		},
		{
			name:    "neither",
			profile: types.Profile{Tools: []types.ToolDefinition{{Name: "empty"}}},
			want:    `tool "empty" declares neither operations nor composite steps`,
		},
		{
			name: "composite without steps",
			profile: types.Profile{Tools: []types.ToolDefinition{{
				Name:      "c",
				Composite: true,
			}}},
			want: `composite tool "c" has no steps`,
		},
		{
			name: "step without call",
			profile: types.Profile{Tools: []types.ToolDefinition{{
				Name:      "c",
				Composite: true,
				Steps:     []types.CompositeStep{{StoreAs: "a"}},
			}}},
			want: `tool "c" step "a" has no call target`,
		},
		{
			name: "required_for unknown action",
			profile: types.Profile{Tools: []types.ToolDefinition{{
				Name:       "t",
				Operations: map[string]string{"get": "getPet"},
				Parameters: map[string]types.ParameterDefinition{
					"petId": {Type: types.SchemaTypeString, RequiredFor: []string{"delete"}},
				},
			}}},
			want: `required_for references unknown action "delete"`,
		},
		{
			name: "required_for against enum",
			profile: types.Profile{Tools: []types.ToolDefinition{{
				Name:       "t",
				Operations: map[string]string{"get": "getPet"},
				Parameters: map[string]types.ParameterDefinition{
					"action": {Type: types.SchemaTypeString, Enum: []string{"list"}},
					"petId":  {Type: types.SchemaTypeString, RequiredFor: []string{"get"}},
				},
			}}},
			want: `required_for references unknown action "get"`,
		},
		{
			name: "bad param type",
			profile: types.Profile{Tools: []types.ToolDefinition{{
				Name:       "t",
				Operations: map[string]string{"get": "getPet"},
				Parameters: map[string]types.ParameterDefinition{"x": {Type: "date"}},
			}}},
			want: `parameter "x" has unsupported type "date"`,
		},
		{
			name: "query auth without param",
			profile: types.Profile{
				Tools:        []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{Auth: &types.AuthConfig{Type: types.AuthQuery, EnvVar: "K"}},
			},
			want: "auth type query requires query_param",
		},
		{
			name: "custom header without name",
			profile: types.Profile{
				Tools:        []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{Auth: &types.AuthConfig{Type: types.AuthCustomHeader, EnvVar: "K"}},
			},
			want: "auth type custom-header requires header_name",
		},
		{
			name: "unknown auth",
			profile: types.Profile{
				Tools:        []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{Auth: &types.AuthConfig{Type: "basic", EnvVar: "K"}},
			},
			want: `unsupported auth type "basic"`,
		},
		{
			name: "rate limit action",
			profile: types.Profile{
				Tools: []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{RateLimit: &types.RateLimitConfig{
					MaxRequestsPerMinute: 10, OnLimit: "drop",
				}},
			},
			want: `unsupported rate_limit.on_limit "drop"`,
		},
		{
			name: "rate limit zero",
			profile: types.Profile{
				Tools:        []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{RateLimit: &types.RateLimitConfig{}},
			},
			want: "rate_limit.max_requests_per_minute must be positive",
		},
		{
			name: "retry attempts",
			profile: types.Profile{
				Tools:        []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{Retry: &types.RetryConfig{MaxAttempts: 0}},
			},
			want: "retry.max_attempts must be at least 1",
		},
		{
			name: "retry negative backoff",
			profile: types.Profile{
				Tools:        []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{Retry: &types.RetryConfig{MaxAttempts: 2, BackoffMs: []int{-1}}},
			},
			want: "retry.backoff_ms must not be negative",
		},
		{
			name: "array format",
			profile: types.Profile{
				Tools:        []types.ToolDefinition{simpleTool("t")},
				Interceptors: types.InterceptorConfig{ArrayFormat: "pipes"},
			},
			want: `unsupported array_format "pipes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.profile)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrProfileLogic))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RequiredForQualifiedOperations(t *testing.T) {
	p := &types.Profile{Tools: []types.ToolDefinition{{
		Name: "res",
		Operations: map[string]string{
			"create_pet":   "createPet",
			"create_owner": "createOwner",
			"list":         "listPets",
		},
		Parameters: map[string]types.ParameterDefinition{
			"action":        {Type: types.SchemaTypeString, Required: true},
			"resource_type": {Type: types.SchemaTypeString},
			"name":          {Type: types.SchemaTypeString, RequiredFor: []string{"create"}},
			"tags":          {Type: types.SchemaTypeString, RequiredFor: []string{"create_pet"}},
		},
	}}}
	require.NoError(t, Validate(p))

	p.Tools[0].Parameters["owner"] = types.ParameterDefinition{Type: types.SchemaTypeString, RequiredFor: []string{"delete"}}
	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required_for references unknown action "delete"`)
}

func TestValidate_CycleKeepsCause(t *testing.T) {
	p := types.Profile{Tools: []types.ToolDefinition{{
		Name:      "loop",
		Composite: true,
		Steps: []types.CompositeStep{
			{Call: "a", StoreAs: "a", DependsOn: []string{"b"}},
			{Call: "b", StoreAs: "b", DependsOn: []string{"a"}},
		},
	}}}

	err := Validate(&p)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProfileLogic))
	assert.Contains(t, err.Error(), "cycle detected among steps: a, b")

	e, ok := types.AsError(err)
	require.True(t, ok)
	cause, ok := types.AsError(e.Cause)
	require.True(t, ok)
	assert.Equal(t, types.ErrDAGCycle, cause.Code)
}

func TestValidate_UnknownDependency(t *testing.T) {
	p := types.Profile{Tools: []types.ToolDefinition{{
		Name:      "c",
		Composite: true,
		Steps: []types.CompositeStep{
			{Call: "getPet", StoreAs: "pet", DependsOn: []string{"owner"}},
		},
	}}}

	err := Validate(&p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "pet" depends on unknown step "owner"`)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	p := types.Profile{
		Tools:        []types.ToolDefinition{{Name: "empty"}},
		Interceptors: types.InterceptorConfig{ArrayFormat: "pipes"},
	}

	err := Validate(&p)
	require.Error(t, err)
	e, _ := types.AsError(err)
	problems, ok := e.Details["problems"].([]string)
	require.True(t, ok)
	assert.Len(t, problems, 2)
}
