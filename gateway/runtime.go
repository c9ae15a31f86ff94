package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/interceptor"
	"github.com/BaSui01/toolbridge/internal/ctxkeys"
	"github.com/BaSui01/toolbridge/profile"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/tools/toolgen"
	"github.com/BaSui01/toolbridge/types"
	"github.com/BaSui01/toolbridge/workflow"
)

const tracerName = "github.com/BaSui01/toolbridge/gateway"

// Option configures a Runtime.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	hooks          Hooks
	tracer         trace.Tracer
	pipeline       *interceptor.Pipeline
	pipelineOpts   []interceptor.Option
	counter        interceptor.WindowCounter
	maxConcurrency int
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHooks subscribes a collector to backend call events.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithTracer sets the tracer used for invocation and step spans. The
// global provider's tracer is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithPipeline uses a prebuilt pipeline instead of building one from the
// profile's interceptor configuration.
func WithPipeline(p *interceptor.Pipeline) Option {
	return func(o *options) { o.pipeline = p }
}

// WithPipelineOptions passes options to the pipeline built from the profile.
func WithPipelineOptions(opts ...interceptor.Option) Option {
	return func(o *options) { o.pipelineOpts = append(o.pipelineOpts, opts...) }
}

// WithTransport injects the network capability of the built pipeline.
func WithTransport(rt http.RoundTripper) Option {
	return WithPipelineOptions(interceptor.WithTransport(rt))
}

// WithEnvLookup replaces the environment lookup for credentials and base URLs.
func WithEnvLookup(env interceptor.EnvLookup) Option {
	return WithPipelineOptions(interceptor.WithEnvLookup(env))
}

// WithWindowCounter supplies the shared counter for rate_limit.backend=redis.
// Counters are scoped by profile name.
func WithWindowCounter(counter interceptor.WindowCounter) Option {
	return func(o *options) { o.counter = counter }
}

// WithMaxConcurrency bounds concurrent steps within one execution level.
func WithMaxConcurrency(n int) Option {
	return func(o *options) { o.maxConcurrency = n }
}

// Runtime executes tool calls for one loaded profile. It is immutable after
// New and safe for concurrent use.
type Runtime struct {
	profile   *types.Profile
	index     *openapi.Index
	pipeline  *interceptor.Pipeline
	generator *toolgen.Generator
	executor  *workflow.DAGExecutor
	tools     map[string]*types.ToolDefinition
	schemas   []types.ToolSchema
	hooks     Hooks
	tracer    trace.Tracer
	logger    *zap.Logger
}

// New validates the profile against the index and prepares every tool.
// Profile logic errors are fatal; operation ids missing from the document
// are logged and surface as UNRESOLVED_OPERATION when called.
func New(p *types.Profile, index *openapi.Index, opts ...Option) (*Runtime, error) {
	if p == nil || index == nil {
		return nil, fmt.Errorf("gateway: profile and index are required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.hooks == nil {
		o.hooks = nopHooks{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	logger := o.logger.With(zap.String("component", "gateway"), zap.String("profile", p.Name))

	if err := profile.Validate(p); err != nil {
		return nil, err
	}

	pipeline := o.pipeline
	if pipeline == nil {
		popts := []interceptor.Option{
			interceptor.WithLogger(o.logger),
			interceptor.WithDiscoveredBaseURL(index.GetBaseURL()),
		}
		if o.counter != nil {
			popts = append(popts, interceptor.WithWindowCounter(o.counter, p.Name))
		}
		var err error
		pipeline, err = interceptor.New(p.Interceptors, append(popts, o.pipelineOpts...)...)
		if err != nil {
			return nil, types.NewError(types.ErrProfileLogic, "invalid interceptor configuration").WithCause(err)
		}
	}

	r := &Runtime{
		profile:   p,
		index:     index,
		pipeline:  pipeline,
		generator: toolgen.NewGenerator(index, o.logger),
		executor:  workflow.NewDAGExecutor(o.maxConcurrency, o.logger),
		tools:     make(map[string]*types.ToolDefinition, len(p.Tools)),
		hooks:     o.hooks,
		tracer:    o.tracer,
		logger:    logger,
	}

	for i := range p.Tools {
		def := &p.Tools[i]
		r.tools[def.Name] = def
		r.checkTargets(def)

		schema, err := r.generator.ToolSchema(def)
		if err != nil {
			return nil, err
		}
		r.schemas = append(r.schemas, schema)
	}
	sort.Slice(r.schemas, func(i, j int) bool { return r.schemas[i].Name < r.schemas[j].Name })

	logger.Info("runtime ready", zap.Int("tools", len(r.tools)))
	return r, nil
}

func (r *Runtime) checkTargets(def *types.ToolDefinition) {
	for action, id := range def.Operations {
		if _, ok := toolgen.ResolveOperation(r.index, id); !ok {
			r.logger.Warn("tool maps to an operation missing from the OpenAPI document",
				zap.String("tool", def.Name),
				zap.String("action", action),
				zap.String("operation_id", id),
			)
		}
	}
	for _, step := range def.Steps {
		if strings.Contains(step.Call, "{{") {
			continue
		}
		if _, ok := toolgen.ResolveOperation(r.index, step.Call); !ok {
			r.logger.Debug("composite step target is not a declared operation",
				zap.String("tool", def.Name),
				zap.String("step", step.StoreAs),
				zap.String("call", step.Call),
			)
		}
	}
}

// Tools returns the callable-tool declarations sorted by name.
func (r *Runtime) Tools() []types.ToolSchema {
	out := make([]types.ToolSchema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// Profile returns the loaded profile.
func (r *Runtime) Profile() *types.Profile {
	return r.profile
}

// Pipeline returns the shared outbound pipeline.
func (r *Runtime) Pipeline() *interceptor.Pipeline {
	return r.pipeline
}

type invocation struct {
	id     string
	tool   string
	logger *zap.Logger
}

// Invoke runs one tool call. Caller-input failures are returned as errors
// before any network traffic; backend error statuses are returned as a
// result with IsError set. Cancelling ctx returns ctx.Err() and no result.
func (r *Runtime) Invoke(ctx context.Context, toolName string, args map[string]any) (*types.ToolResult, error) {
	def, ok := r.tools[toolName]
	if !ok {
		return nil, types.Errorf(types.ErrToolNotFound, "tool %q not found", toolName).
			WithHTTPStatus(http.StatusNotFound)
	}

	inv := invocation{id: uuid.NewString(), tool: toolName}
	inv.logger = r.logger.With(zap.String("tool", toolName), zap.String("invocation_id", inv.id))

	ctx = ctxkeys.WithInvocationID(ctxkeys.WithTool(ctx, toolName), inv.id)
	ctx, span := r.tracer.Start(ctx, "toolbridge.invoke", trace.WithAttributes(
		attribute.String("toolbridge.tool", toolName),
		attribute.String("toolbridge.invocation_id", inv.id),
		attribute.Bool("toolbridge.composite", def.IsComposite()),
	))
	defer span.End()

	start := time.Now()
	args = withDefaults(def, args)

	result, err := r.invoke(ctx, inv, def, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if types.IsCallerError(err) {
			inv.logger.Debug("invocation rejected", zap.Error(err))
		} else {
			inv.logger.Warn("invocation failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		}
		return nil, err
	}

	result.Tool = toolName
	result.InvocationID = inv.id
	result.Duration = time.Since(start)
	if result.IsError {
		span.SetStatus(codes.Error, "backend error")
	}
	inv.logger.Debug("invocation completed",
		zap.String("operation", result.Operation),
		zap.Int("status", result.Status),
		zap.Bool("partial", result.Partial),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (r *Runtime) invoke(ctx context.Context, inv invocation, def *types.ToolDefinition, args map[string]any) (*types.ToolResult, error) {
	if err := toolgen.ValidateArguments(def, args); err != nil {
		return nil, err
	}
	if def.IsComposite() {
		return r.invokeComposite(ctx, inv, def, args)
	}
	return r.invokeSimple(ctx, inv, def, args)
}

func (r *Runtime) invokeSimple(ctx context.Context, inv invocation, def *types.ToolDefinition, args map[string]any) (*types.ToolResult, error) {
	opID, ok := toolgen.MapActionToOperation(def, args)
	if !ok {
		e := types.Errorf(types.ErrUnresolvedOperation, "tool %q has no operation for the given action", def.Name).
			WithHTTPStatus(http.StatusBadRequest)
		if action, ok := args[toolgen.ArgAction]; ok {
			e = e.WithDetail("action", action)
		}
		if rt, ok := args[toolgen.ArgResourceType]; ok {
			e = e.WithDetail("resource_type", rt)
		}
		return nil, e
	}
	op, ok := toolgen.ResolveOperation(r.index, opID)
	if !ok {
		return nil, types.Errorf(types.ErrUnresolvedOperation, "operation %q is not declared in the OpenAPI document", opID).
			WithDetail("operation", opID)
	}

	call, err := bindArguments(op, args, r.aliases(def))
	if err != nil {
		return nil, err
	}
	resp, err := r.send(ctx, inv, call)
	if err != nil {
		return nil, err
	}
	return &types.ToolResult{
		Operation: op.OperationID,
		Status:    resp.Status,
		Body:      decodeBody(resp.Body),
		IsError:   resp.IsError(),
	}, nil
}

func (r *Runtime) invokeComposite(ctx context.Context, inv invocation, def *types.ToolDefinition, args map[string]any) (*types.ToolResult, error) {
	aliases := r.aliases(def)
	results, err := r.executor.Execute(ctx, def.Steps, def.PartialResults,
		func(ctx context.Context, step types.CompositeStep, settled map[string]*types.StepResult) (*types.StepResult, error) {
			return r.runStep(ctx, inv, step, args, settled, aliases)
		})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	out := &types.ToolResult{Steps: results}
	body := make(map[string]any, len(results))
	succeeded := 0
	for key, res := range results {
		if res.Status == types.StepStatusOK {
			body[key] = res.Data
			succeeded++
			continue
		}
		out.Partial = true
	}
	out.Body = body
	out.IsError = succeeded == 0 && len(results) > 0
	return out, nil
}

func (r *Runtime) runStep(ctx context.Context, inv invocation, step types.CompositeStep, args map[string]any,
	settled map[string]*types.StepResult, aliases map[string]string) (*types.StepResult, error) {
	ctx, span := r.tracer.Start(ctx, "toolbridge.step", trace.WithAttributes(
		attribute.String("toolbridge.step", step.StoreAs),
		attribute.String("toolbridge.call", step.Call),
	))
	defer span.End()

	start := time.Now()
	res, err := r.executeStep(ctx, inv, step, args, settled, aliases)
	if res == nil {
		res = &types.StepResult{}
	}
	res.Duration = time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Status == types.StepStatusError:
		span.SetStatus(codes.Error, res.Error)
	}
	inv.logger.Debug("step settled",
		zap.String("step", step.StoreAs),
		zap.Int("status", res.HTTPStatus),
		zap.Duration("duration", res.Duration),
		zap.Error(err),
	)
	return res, err
}

func (r *Runtime) executeStep(ctx context.Context, inv invocation, step types.CompositeStep, args map[string]any,
	settled map[string]*types.StepResult, aliases map[string]string) (*types.StepResult, error) {
	scope, err := newTemplateScope(args, settled)
	if err != nil {
		return nil, err
	}
	target, err := scope.renderText(step.Call)
	if err != nil {
		return nil, err
	}

	var stepArgs map[string]any
	if step.Params != nil {
		rendered, err := scope.render(step.Params)
		if err != nil {
			return nil, err
		}
		stepArgs = rendered.(map[string]any)
	}

	// 未声明 params 时，只有文档内的操作继承调用参数；裸路由没有参数声明可供筛选
	var call *preparedCall
	if op, ok := toolgen.ResolveOperation(r.index, target); ok {
		if step.Params == nil {
			stepArgs = args
		}
		call, err = bindArguments(op, stepArgs, aliases)
	} else {
		call, err = rawCall(target, stepArgs)
	}
	if err != nil {
		return nil, err
	}

	resp, err := r.send(ctx, inv, call)
	if err != nil {
		return nil, err
	}
	res := &types.StepResult{
		Status:     types.StepStatusOK,
		HTTPStatus: resp.Status,
		Data:       decodeBody(resp.Body),
	}
	res.SetRaw(resp.Body)
	if resp.IsError() {
		res.Status = types.StepStatusError
		res.Error = statusError(resp.Status)
	}
	return res, nil
}

// send performs one backend call through the pipeline and reports it.
func (r *Runtime) send(ctx context.Context, inv invocation, call *preparedCall) (*interceptor.Response, error) {
	start := time.Now()
	resp, err := r.pipeline.Request(ctx, call.method, call.path, call.opts)

	status := 0
	if resp != nil {
		status = resp.Status
	}
	r.hooks.OnCall(CallEvent{
		InvocationID: inv.id,
		Tool:         inv.tool,
		Operation:    call.op.OperationID,
		Method:       call.method,
		Status:       status,
		StatusClass:  StatusClass(status),
		Duration:     time.Since(start),
		ErrorType:    ErrorType(status, err),
	})
	return resp, err
}

// aliases merges profile-wide aliases with the tool's own, which win.
func (r *Runtime) aliases(def *types.ToolDefinition) map[string]string {
	if len(r.profile.ParameterAliases) == 0 {
		return def.Aliases
	}
	out := make(map[string]string, len(r.profile.ParameterAliases)+len(def.Aliases))
	for k, v := range r.profile.ParameterAliases {
		out[k] = v
	}
	for k, v := range def.Aliases {
		out[k] = v
	}
	return out
}

// withDefaults copies args and fills declared defaults for absent parameters.
func withDefaults(def *types.ToolDefinition, args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+len(def.Parameters))
	for k, v := range args {
		out[k] = v
	}
	for name, p := range def.Parameters {
		if _, ok := out[name]; !ok && p.Default != nil {
			out[name] = p.Default
		}
	}
	return out
}
