package toolgen

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/types"
)

// Argument names with dispatch meaning.
const (
	ArgAction       = "action"
	ArgResourceType = "resource_type"
)

// Generator turns tool definitions into callable-tool schemas. With an index
// it fills parameter descriptions the profile leaves empty from the OpenAPI
// operations the tool maps to.
type Generator struct {
	index  *openapi.Index
	logger *zap.Logger
}

// NewGenerator creates a generator. index may be nil.
func NewGenerator(index *openapi.Index, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		index:  index,
		logger: logger.With(zap.String("component", "toolgen")),
	}
}

// GenerateSchema builds the input schema for def. Only unconditionally
// required parameters go into Required; required_for is documented in the
// property description since JSON Schema cannot express it.
func (g *Generator) GenerateSchema(def *types.ToolDefinition) types.ToolInputSchema {
	schema := types.ToolInputSchema{
		Type:       types.SchemaTypeObject,
		Properties: make(map[string]*types.SchemaInfo, len(def.Parameters)),
		Required:   []string{},
	}
	for name, param := range def.Parameters {
		prop := parameterSchema(&param)
		if prop.Description == "" {
			prop.Description = g.operationParamDescription(def, name)
		}
		if len(param.RequiredFor) > 0 {
			prop.Description = strings.TrimSpace(fmt.Sprintf("%s (required for: %s)",
				prop.Description, strings.Join(param.RequiredFor, ", ")))
		}
		schema.Properties[name] = prop
		if param.Required {
			schema.Required = append(schema.Required, name)
		}
	}
	sort.Strings(schema.Required)
	return schema
}

// ToolSchema returns the declaration handed to the protocol layer verbatim.
func (g *Generator) ToolSchema(def *types.ToolDefinition) (types.ToolSchema, error) {
	params, err := json.Marshal(g.GenerateSchema(def))
	if err != nil {
		return types.ToolSchema{}, fmt.Errorf("marshal schema for tool %s: %w", def.Name, err)
	}
	return types.ToolSchema{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  params,
	}, nil
}

func (g *Generator) operationParamDescription(def *types.ToolDefinition, name string) string {
	if g.index == nil {
		return ""
	}
	ids := make([]string, 0, len(def.Operations)+len(def.Steps))
	for _, id := range def.Operations {
		ids = append(ids, id)
	}
	for _, step := range def.Steps {
		ids = append(ids, step.Call)
	}
	sort.Strings(ids)

	apiName := name
	if alias, ok := def.Aliases[name]; ok {
		apiName = alias
	}
	for _, id := range ids {
		op, ok := ResolveOperation(g.index, id)
		if !ok {
			continue
		}
		if p, ok := op.Parameter(apiName); ok && p.Description != "" {
			return p.Description
		}
	}
	return ""
}

func parameterSchema(p *types.ParameterDefinition) *types.SchemaInfo {
	s := &types.SchemaInfo{
		Type:        p.Type,
		Description: p.Description,
		Default:     p.Default,
	}
	if len(p.Enum) > 0 {
		s.Enum = make([]any, len(p.Enum))
		for i, v := range p.Enum {
			s.Enum[i] = v
		}
	}
	if p.Items != nil {
		s.Items = parameterSchema(p.Items)
	}
	if s.Type == types.SchemaTypeArray && s.Items == nil {
		s.Items = &types.SchemaInfo{Type: types.SchemaTypeString}
	}
	return s
}

// ValidateArguments checks invocation arguments. Parameters are visited in
// name order; missing required parameters are reported first, then
// conditionally required ones, then enum violations.
func ValidateArguments(def *types.ToolDefinition, args map[string]any) error {
	names := make([]string, 0, len(def.Parameters))
	for name := range def.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if def.Parameters[name].Required && !present(args, name) {
			return types.Errorf(types.ErrMissingRequiredParameter, "missing required parameter %q", name).
				WithHTTPStatus(http.StatusBadRequest).
				WithDetail("parameter", name)
		}
	}

	if action, ok := args[ArgAction].(string); ok && action != "" {
		for _, name := range names {
			param := def.Parameters[name]
			if slices.Contains(param.RequiredFor, action) && !present(args, name) {
				return types.Errorf(types.ErrConditionallyRequiredParameter,
					"parameter %q is required when action is %q", name, action).
					WithHTTPStatus(http.StatusBadRequest).
					WithDetail("parameter", name).
					WithDetail("action", action)
			}
		}
	}

	for _, name := range names {
		if !present(args, name) {
			continue
		}
		param := def.Parameters[name]
		if err := checkEnum(name, &param, args[name]); err != nil {
			return err
		}
	}
	return nil
}

func checkEnum(name string, param *types.ParameterDefinition, value any) error {
	if len(param.Enum) > 0 {
		s := fmt.Sprint(value)
		if !slices.Contains(param.Enum, s) {
			return invalidEnum(name, s, param.Enum)
		}
	}
	if param.Items != nil && len(param.Items.Enum) > 0 {
		if items, ok := value.([]any); ok {
			for _, item := range items {
				s := fmt.Sprint(item)
				if !slices.Contains(param.Items.Enum, s) {
					return invalidEnum(name, s, param.Items.Enum)
				}
			}
		}
	}
	return nil
}

func invalidEnum(name, value string, allowed []string) error {
	return types.Errorf(types.ErrInvalidEnumValue, "invalid value %q for parameter %q, expected one of: %s",
		value, name, strings.Join(allowed, ", ")).
		WithHTTPStatus(http.StatusBadRequest).
		WithDetail("parameter", name).
		WithDetail("allowed", allowed)
}

func present(args map[string]any, name string) bool {
	v, ok := args[name]
	return ok && v != nil
}

// MapActionToOperation resolves the operation id for a simple tool call.
// A single-operation tool called without an action maps to that operation.
// Otherwise "{action}_{resource_type}" is tried before the bare action.
// The boolean is false when nothing applies, which callers must treat as
// an unresolvable operation rather than a validation failure.
func MapActionToOperation(def *types.ToolDefinition, args map[string]any) (string, bool) {
	if def.IsComposite() || len(def.Operations) == 0 {
		return "", false
	}

	action, _ := args[ArgAction].(string)
	if action == "" {
		if len(def.Operations) == 1 {
			for _, id := range def.Operations {
				return id, true
			}
		}
		return "", false
	}

	if rt, ok := args[ArgResourceType].(string); ok && rt != "" {
		if id, ok := def.Operations[action+"_"+rt]; ok {
			return id, true
		}
	}
	id, ok := def.Operations[action]
	return id, ok
}

// ResolveOperation looks up a call target that is either an operation id or
// a "METHOD /path" route.
func ResolveOperation(index *openapi.Index, call string) (*openapi.OperationInfo, bool) {
	if op, ok := index.GetOperation(call); ok {
		return op, true
	}
	method, path, ok := strings.Cut(strings.TrimSpace(call), " ")
	if !ok {
		return nil, false
	}
	return index.GetOperationByRoute(method, strings.TrimSpace(path))
}
