package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BaSui01/toolbridge/interceptor"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/types"
	"github.com/BaSui01/toolbridge/workflow"
)

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type sentRequest struct {
	method string
	url    string
	path   string
	header http.Header
	body   string
}

// backend 按路径应答并记录收到的请求
type backend struct {
	mu       sync.Mutex
	requests []sentRequest
	handle   func(r *http.Request) (*http.Response, error)
}

func (b *backend) RoundTrip(r *http.Request) (*http.Response, error) {
	body := ""
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
	}
	b.mu.Lock()
	b.requests = append(b.requests, sentRequest{
		method: r.Method,
		url:    r.URL.String(),
		path:   r.URL.EscapedPath(),
		header: r.Header.Clone(),
		body:   body,
	})
	b.mu.Unlock()
	if b.handle == nil {
		return respond(http.StatusOK, `{}`), nil
	}
	return b.handle(r)
}

func (b *backend) sent() []sentRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentRequest(nil), b.requests...)
}

func (b *backend) paths() []string {
	var out []string
	for _, r := range b.sent() {
		out = append(out, r.method+" "+r.path)
	}
	return out
}

func petsBackend(r *http.Request) (*http.Response, error) {
	switch {
	case r.URL.Path == "/v1/pets" && r.Method == http.MethodGet:
		return respond(http.StatusOK, `[{"id":"1","name":"Rex"}]`), nil
	case r.URL.Path == "/v1/pets" && r.Method == http.MethodPost:
		return respond(http.StatusCreated, `{"id":"2"}`), nil
	case r.URL.Path == "/v1/pets/1":
		return respond(http.StatusOK, `{"id":"1","name":"Rex","owner":{"id":"42"}}`), nil
	case strings.HasPrefix(r.URL.Path, "/v1/owners/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/owners/")
		return respond(http.StatusOK, `{"id":"`+id+`","name":"Ada"}`), nil
	case r.URL.Path == "/v1/vets":
		return respond(http.StatusOK, `["Dr. Who"]`), nil
	}
	return respond(http.StatusNotFound, `{"message":"not found"}`), nil
}

func loadIndex(t *testing.T) *openapi.Index {
	t.Helper()
	idx, err := openapi.LoadFile("testdata/pets.yaml", nil)
	require.NoError(t, err)
	return idx
}

func envMap(m map[string]string) interceptor.EnvLookup {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func compositeSteps() []types.CompositeStep {
	return []types.CompositeStep{
		{Call: "getPet", StoreAs: "pet", Params: map[string]any{"petId": "{{args.petId}}"}},
		{Call: "getOwner", StoreAs: "owner", DependsOn: []string{"pet"},
			Params: map[string]any{"ownerId": "{{steps.pet.owner.id}}"}},
		{Call: "listVets", StoreAs: "vets", Params: map[string]any{}},
	}
}

func testProfile() *types.Profile {
	return &types.Profile{
		Name: "pets",
		Interceptors: types.InterceptorConfig{
			Auth:        &types.AuthConfig{Type: types.AuthBearer, EnvVar: "PETS_TOKEN"},
			ArrayFormat: types.ArrayFormatComma,
		},
		ParameterAliases: map[string]string{"id": "petId"},
		Tools: []types.ToolDefinition{
			{
				Name:        "pets",
				Description: "Manage pets",
				Parameters: map[string]types.ParameterDefinition{
					"action":       {Type: types.SchemaTypeString, Required: true, Enum: []string{"list", "get", "create"}},
					"id":           {Type: types.SchemaTypeString, RequiredFor: []string{"get"}},
					"tags":         {Type: types.SchemaTypeArray, Items: &types.ParameterDefinition{Type: types.SchemaTypeString}},
					"name":         {Type: types.SchemaTypeString},
					"age":          {Type: types.SchemaTypeInteger},
					"X-Request-Id": {Type: types.SchemaTypeString},
					"session":      {Type: types.SchemaTypeString},
				},
				Operations: map[string]string{"list": "listPets", "get": "getPet", "create": "createPet"},
			},
			{
				Name:        "vets",
				Description: "List vets",
				Parameters: map[string]types.ParameterDefinition{
					"limit": {Type: types.SchemaTypeInteger, Default: 10},
				},
				Operations: map[string]string{"list": "listVets"},
			},
			{
				Name:        "pet_with_owner",
				Description: "Pet and its owner",
				Composite:   true,
				Parameters: map[string]types.ParameterDefinition{
					"petId": {Type: types.SchemaTypeString, Required: true},
				},
				Steps: compositeSteps(),
			},
			{
				Name:           "pet_report",
				Description:    "Pet, owner and vets, tolerating failures",
				Composite:      true,
				PartialResults: true,
				Parameters: map[string]types.ParameterDefinition{
					"petId": {Type: types.SchemaTypeString, Required: true},
				},
				Steps: compositeSteps(),
			},
		},
	}
}

func newRuntime(t *testing.T, be *backend, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{
		WithTransport(be),
		WithEnvLookup(envMap(map[string]string{"PETS_TOKEN": "tok"})),
	}, opts...)
	rt, err := New(testProfile(), loadIndex(t), opts...)
	require.NoError(t, err)
	return rt
}

func TestNew_Validation(t *testing.T) {
	idx := loadIndex(t)

	_, err := New(nil, idx)
	assert.Error(t, err)

	p := testProfile()
	p.Tools[2].Steps[0].DependsOn = []string{"owner"}
	_, err = New(p, idx)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProfileLogic))
	assert.Contains(t, err.Error(), "cycle detected among steps")

	p = testProfile()
	p.Interceptors.RateLimit = &types.RateLimitConfig{MaxRequestsPerMinute: 5, Backend: "redis"}
	_, err = New(p, idx)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProfileLogic))
}

func TestRuntime_Tools(t *testing.T) {
	rt := newRuntime(t, &backend{})

	tools := rt.Tools()
	require.Len(t, tools, 4)
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	assert.Equal(t, []string{"pet_report", "pet_with_owner", "pets", "vets"}, names)

	var schema types.ToolInputSchema
	require.NoError(t, json.Unmarshal(tools[2].Parameters, &schema))
	assert.Equal(t, []string{"action"}, schema.Required)
	assert.Contains(t, schema.Properties["id"].Description, "(required for: get)")
}

func TestInvoke_UnknownTool(t *testing.T) {
	rt := newRuntime(t, &backend{})
	_, err := rt.Invoke(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrToolNotFound))
}

func TestInvoke_ArgumentErrorsNeverReachNetwork(t *testing.T) {
	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be)
	ctx := context.Background()

	_, err := rt.Invoke(ctx, "pets", map[string]any{})
	assert.True(t, types.IsCode(err, types.ErrMissingRequiredParameter))

	_, err = rt.Invoke(ctx, "pets", map[string]any{"action": "get"})
	assert.True(t, types.IsCode(err, types.ErrConditionallyRequiredParameter))

	_, err = rt.Invoke(ctx, "pets", map[string]any{"action": "delete"})
	assert.True(t, types.IsCode(err, types.ErrInvalidEnumValue))

	_, err = rt.Invoke(ctx, "pets", map[string]any{"action": "create", "age": 3})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrValidation))
	assert.Contains(t, err.Error(), "name: Required property is missing")

	assert.Empty(t, be.sent())
}

func TestInvoke_UnresolvedOperation(t *testing.T) {
	p := testProfile()
	p.Tools[0].Parameters["action"] = types.ParameterDefinition{Type: types.SchemaTypeString, Required: true}
	p.Tools[0].Operations["archive"] = "archivePet"

	rt, err := New(p, loadIndex(t), WithTransport(&backend{}))
	require.NoError(t, err)

	_, err = rt.Invoke(context.Background(), "pets", map[string]any{"action": "feed"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUnresolvedOperation))

	_, err = rt.Invoke(context.Background(), "pets", map[string]any{"action": "archive"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUnresolvedOperation))
	assert.Contains(t, err.Error(), "archivePet")
}

func TestInvoke_SimpleGet(t *testing.T) {
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"id":"a b/c"}`), nil
	}}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pets", map[string]any{
		"action":       "get",
		"id":           "a b/c",
		"X-Request-Id": "req-1",
		"session":      "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, "pets", res.Tool)
	assert.Equal(t, "getPet", res.Operation)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.False(t, res.IsError)
	assert.NotEmpty(t, res.InvocationID)
	assert.Equal(t, map[string]any{"id": "a b/c"}, res.Body)

	sent := be.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, http.MethodGet, sent[0].method)
	assert.Equal(t, "/v1/pets/a%20b%2Fc", sent[0].path)
	assert.Equal(t, "Bearer tok", sent[0].header.Get("Authorization"))
	assert.Equal(t, "req-1", sent[0].header.Get("X-Request-Id"))
	assert.Equal(t, "session=s1", sent[0].header.Get("Cookie"))
}

func TestInvoke_ArrayQuery(t *testing.T) {
	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pets", map[string]any{
		"action": "list",
		"tags":   []any{"cat", "dog"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "1", "name": "Rex"}}, res.Body)

	sent := be.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "https://pets.example.com/v1/pets?tags=cat,dog", sent[0].url)
}

func TestInvoke_DefaultsApplied(t *testing.T) {
	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be)

	_, err := rt.Invoke(context.Background(), "vets", nil)
	require.NoError(t, err)

	sent := be.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "https://pets.example.com/v1/vets?limit=10", sent[0].url)
}

func TestInvoke_BodyFromUnconsumedArguments(t *testing.T) {
	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pets", map[string]any{
		"action": "create",
		"name":   "Rex",
		"age":    3,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.Status)

	sent := be.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, http.MethodPost, sent[0].method)
	assert.Equal(t, "application/json", sent[0].header.Get("Content-Type"))
	assert.JSONEq(t, `{"name":"Rex","age":3}`, sent[0].body)
}

func TestInvoke_ExplicitBody(t *testing.T) {
	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be)

	_, err := rt.Invoke(context.Background(), "pets", map[string]any{
		"action": "create",
		"body":   map[string]any{"name": "Tom"},
		"age":    7,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Tom"}`, be.sent()[0].body)

	_, err = rt.Invoke(context.Background(), "pets", map[string]any{
		"action": "create",
		"body":   map[string]any{"name": 12},
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrValidation))
	assert.Len(t, be.sent(), 1)
}

func TestInvoke_BackendErrorIsResult(t *testing.T) {
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, `{"message":"no such pet"}`), nil
	}}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pets", map[string]any{"action": "get", "id": "9"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, map[string]any{"message": "no such pet"}, res.Body)
}

func TestInvoke_NonJSONBody(t *testing.T) {
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "plain text"), nil
	}}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "vets", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", res.Body)
}

func TestInvoke_NetworkError(t *testing.T) {
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}
	rt := newRuntime(t, be)

	_, err := rt.Invoke(context.Background(), "vets", nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNetwork))
}

func TestInvoke_Hooks(t *testing.T) {
	var mu sync.Mutex
	var events []CallEvent
	hooks := HooksFunc(func(e CallEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be, WithHooks(hooks))

	_, err := rt.Invoke(context.Background(), "pets", map[string]any{"action": "get", "id": "404"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "pets", e.Tool)
	assert.Equal(t, "getPet", e.Operation)
	assert.Equal(t, http.MethodGet, e.Method)
	assert.Equal(t, http.StatusNotFound, e.Status)
	assert.Equal(t, "4xx", e.StatusClass)
	assert.Equal(t, "HTTP_ERROR", e.ErrorType)
	assert.NotEmpty(t, e.InvocationID)
}

func TestInvoke_Composite(t *testing.T) {
	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pet_with_owner", map[string]any{"petId": "1"})
	require.NoError(t, err)

	assert.False(t, res.IsError)
	assert.False(t, res.Partial)
	require.Len(t, res.Steps, 3)
	for key, step := range res.Steps {
		assert.Equal(t, types.StepStatusOK, step.Status, key)
	}

	body, ok := res.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"id": "42", "name": "Ada"}, body["owner"])
	assert.Equal(t, []any{"Dr. Who"}, body["vets"])

	paths := be.paths()
	require.Len(t, paths, 3)
	// owner 依赖 pet，必须在其之后
	assert.Equal(t, "GET /v1/owners/42", paths[2])
	assert.ElementsMatch(t, []string{"GET /v1/pets/1", "GET /v1/vets"}, paths[:2])
}

func TestInvoke_CompositeAbortsOnFailure(t *testing.T) {
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/v1/pets/1" {
			return respond(http.StatusInternalServerError, `{}`), nil
		}
		return petsBackend(r)
	}}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pet_with_owner", map[string]any{"petId": "1"})
	require.Error(t, err)
	assert.Nil(t, res)

	var stepErr *workflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "pet", stepErr.Step)
	assert.Contains(t, err.Error(), "backend returned status 500")

	assert.NotContains(t, be.paths(), "GET /v1/owners/42")
}

func TestInvoke_CompositePartialResults(t *testing.T) {
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/v1/pets/1" {
			return respond(http.StatusServiceUnavailable, `{"message":"down"}`), nil
		}
		return petsBackend(r)
	}}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pet_report", map[string]any{"petId": "1"})
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.False(t, res.IsError)

	pet := res.Steps["pet"]
	assert.Equal(t, types.StepStatusError, pet.Status)
	assert.Equal(t, http.StatusServiceUnavailable, pet.HTTPStatus)
	assert.Contains(t, pet.Error, "503")

	owner := res.Steps["owner"]
	assert.Equal(t, types.StepStatusSkipped, owner.Status)
	assert.Equal(t, types.SkippedDueToDependencyFailure, owner.Reason)

	assert.Equal(t, types.StepStatusOK, res.Steps["vets"].Status)
	assert.ElementsMatch(t, []string{"GET /v1/pets/1", "GET /v1/vets"}, be.paths())
}

func TestInvoke_CompositeUnresolvedReference(t *testing.T) {
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/v1/pets/1" {
			return respond(http.StatusOK, `{"id":"1"}`), nil
		}
		return petsBackend(r)
	}}
	rt := newRuntime(t, be)

	res, err := rt.Invoke(context.Background(), "pet_report", map[string]any{"petId": "1"})
	require.NoError(t, err)

	owner := res.Steps["owner"]
	assert.Equal(t, types.StepStatusError, owner.Status)
	assert.Contains(t, owner.Error, `unresolved reference "steps.pet.owner.id"`)
	assert.True(t, res.Partial)
}

func TestInvoke_CompositeRawRoute(t *testing.T) {
	p := testProfile()
	p.Tools = append(p.Tools, types.ToolDefinition{
		Name:      "owner_of",
		Composite: true,
		Parameters: map[string]types.ParameterDefinition{
			"petId": {Type: types.SchemaTypeString, Required: true},
		},
		Steps: []types.CompositeStep{
			{Call: "GET /pets/{petId}", StoreAs: "pet", Params: map[string]any{"petId": "{{args.petId}}"}},
			{Call: "GET /owners/{{steps.pet.owner.id}}", StoreAs: "owner", DependsOn: []string{"pet"}, Params: map[string]any{}},
		},
	})
	be := &backend{handle: petsBackend}
	rt, err := New(p, loadIndex(t), WithTransport(be))
	require.NoError(t, err)

	res, err := rt.Invoke(context.Background(), "owner_of", map[string]any{"petId": "1"})
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, []string{"GET /v1/pets/1", "GET /v1/owners/42"}, be.paths())
}

func TestInvoke_CompositeKeepsLargeIntegerIDs(t *testing.T) {
	p := testProfile()
	p.Tools = append(p.Tools, types.ToolDefinition{
		Name:      "item_chain",
		Composite: true,
		Parameters: map[string]types.ParameterDefinition{
			"limit": {Type: types.SchemaTypeInteger},
		},
		Steps: []types.CompositeStep{
			{Call: "GET /items", StoreAs: "first"},
			{Call: "GET /items/{{steps.first.id}}", StoreAs: "item", DependsOn: []string{"first"}},
		},
	})
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		switch r.URL.Path {
		case "/v1/items":
			return respond(http.StatusOK, `{"id":9007199254740993}`), nil
		case "/v1/items/9007199254740993":
			return respond(http.StatusOK, `{"id":9007199254740993,"name":"big"}`), nil
		}
		return respond(http.StatusNotFound, `{}`), nil
	}}
	rt, err := New(p, loadIndex(t), WithTransport(be))
	require.NoError(t, err)

	res, err := rt.Invoke(context.Background(), "item_chain", map[string]any{"limit": 5})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.False(t, res.Partial)

	sent := be.sent()
	require.Len(t, sent, 2)
	// 裸路由步骤未声明 params，不携带调用参数
	assert.Equal(t, "https://pets.example.com/v1/items", sent[0].url)
	assert.Equal(t, "https://pets.example.com/v1/items/9007199254740993", sent[1].url)

	body, ok := res.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"id": json.Number("9007199254740993"), "name": "big"}, body["item"])
}

func TestDecodeBody(t *testing.T) {
	assert.Nil(t, decodeBody(nil))
	assert.Equal(t, map[string]any{"id": json.Number("18446744073709551615")},
		decodeBody([]byte(`{"id":18446744073709551615}`)))
	assert.Equal(t, []any{json.Number("1.5")}, decodeBody([]byte(" [1.5]\n")))
	assert.Equal(t, "plain text", decodeBody([]byte("plain text")))
	assert.Equal(t, `{"a":1} trailing`, decodeBody([]byte(`{"a":1} trailing`)))
}

func TestInvoke_CancellationDiscardsResults(t *testing.T) {
	release := make(chan struct{})
	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/v1/vets" {
			return respond(http.StatusOK, `[]`), nil
		}
		select {
		case <-r.Context().Done():
			return nil, r.Context().Err()
		case <-release:
			return petsBackend(r)
		}
	}}
	defer close(release)
	rt := newRuntime(t, be)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := rt.Invoke(ctx, "pet_report", map[string]any{"petId": "1"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, be.paths(), "GET /v1/owners/42")
}

func TestInvoke_ConcurrentCallsShareRuntime(t *testing.T) {
	be := &backend{handle: petsBackend}
	rt := newRuntime(t, be)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := rt.Invoke(context.Background(), "pet_with_owner", map[string]any{"petId": "1"})
			assert.NoError(t, err)
			if res != nil {
				assert.Len(t, res.Steps, 3)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, be.sent(), 30)
}

func TestInvoke_RateLimitRejectsAcrossTools(t *testing.T) {
	p := testProfile()
	p.Interceptors.RateLimit = &types.RateLimitConfig{MaxRequestsPerMinute: 2}
	be := &backend{handle: petsBackend}
	rt, err := New(p, loadIndex(t), WithTransport(be))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = rt.Invoke(ctx, "vets", nil)
	require.NoError(t, err)
	_, err = rt.Invoke(ctx, "pets", map[string]any{"action": "list"})
	require.NoError(t, err)

	_, err = rt.Invoke(ctx, "vets", nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRateLimited))
	assert.Len(t, be.sent(), 2)
}

func TestInvoke_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	be := &backend{handle: func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/v1/vets" {
			return respond(http.StatusBadGateway, `{}`), nil
		}
		return petsBackend(r)
	}}
	rt := newRuntime(t, be, WithTracer(tp.Tracer("test")))

	res, err := rt.Invoke(context.Background(), "pet_report", map[string]any{"petId": "1"})
	require.NoError(t, err)
	assert.True(t, res.Partial)

	spans := sr.Ended()
	require.Len(t, spans, 4)

	var invoke sdktrace.ReadOnlySpan
	steps := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		switch s.Name() {
		case "toolbridge.invoke":
			invoke = s
		case "toolbridge.step":
			for _, kv := range s.Attributes() {
				if kv.Key == "toolbridge.step" {
					steps[kv.Value.AsString()] = s
				}
			}
		}
	}
	require.NotNil(t, invoke)
	require.Len(t, steps, 3)
	for key, s := range steps {
		assert.Equal(t, invoke.SpanContext().SpanID(), s.Parent().SpanID(), key)
	}
	assert.Equal(t, codes.Error, steps["vets"].Status().Code)
	assert.Equal(t, codes.Unset, steps["pet"].Status().Code)
}
