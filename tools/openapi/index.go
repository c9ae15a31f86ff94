package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/BaSui01/toolbridge/types"
)

// ParameterLocation is where an operation parameter travels.
type ParameterLocation string

const (
	InPath   ParameterLocation = "path"
	InQuery  ParameterLocation = "query"
	InHeader ParameterLocation = "header"
	InCookie ParameterLocation = "cookie"
)

// ParameterInfo describes one operation parameter.
type ParameterInfo struct {
	Name        string            `json:"name"`
	In          ParameterLocation `json:"in"`
	Required    bool              `json:"required,omitempty"`
	Schema      *types.SchemaInfo `json:"schema,omitempty"`
	Description string            `json:"description,omitempty"`
}

// RequestBodyInfo describes an operation request body.
type RequestBodyInfo struct {
	Required bool                         `json:"required,omitempty"`
	Content  map[string]*types.SchemaInfo `json:"content,omitempty"`
}

// JSONSchema returns the schema of the JSON media type, if the body declares one.
func (b *RequestBodyInfo) JSONSchema() (*types.SchemaInfo, bool) {
	if b == nil {
		return nil, false
	}
	if s, ok := b.Content["application/json"]; ok {
		return s, true
	}
	mediaTypes := make([]string, 0, len(b.Content))
	for mt := range b.Content {
		mediaTypes = append(mediaTypes, mt)
	}
	sort.Strings(mediaTypes)
	for _, mt := range mediaTypes {
		if strings.HasSuffix(mt, "+json") {
			return b.Content[mt], true
		}
	}
	return nil, false
}

// OperationInfo is the immutable record of one method+path entry.
type OperationInfo struct {
	OperationID string           `json:"operationId"`
	Method      string           `json:"method"`
	Path        string           `json:"path"`
	Summary     string           `json:"summary,omitempty"`
	Description string           `json:"description,omitempty"`
	Parameters  []ParameterInfo  `json:"parameters,omitempty"`
	RequestBody *RequestBodyInfo `json:"requestBody,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
}

// Parameter returns the named parameter.
func (o *OperationInfo) Parameter(name string) (*ParameterInfo, bool) {
	for i := range o.Parameters {
		if o.Parameters[i].Name == name {
			return &o.Parameters[i], true
		}
	}
	return nil, false
}

// methodOrder fixes the registration order inside a path item so that
// synthesized id collisions resolve the same way on every load.
var methodOrder = []string{
	http.MethodGet,
	http.MethodPut,
	http.MethodPost,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodHead,
	http.MethodPatch,
	http.MethodTrace,
}

// Index is a read-only, operation-id-keyed and path-keyed view of an OpenAPI
// document. It is built once and shared by all invocations.
type Index struct {
	doc        *openapi3.T
	operations map[string]*OperationInfo
	paths      map[string]map[string]*OperationInfo
	baseURL    string
	logger     *zap.Logger
}

// Load parses a YAML or JSON OpenAPI document and builds the index.
func Load(document []byte, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "openapi_index"))

	data, err := yaml.YAMLToJSON(document)
	if err != nil {
		return nil, types.NewError(types.ErrSpecParse, "malformed OpenAPI document").WithCause(err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, types.NewError(types.ErrSpecParse, "OpenAPI document root must be a mapping")
	}

	var doc openapi3.T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.NewError(types.ErrSpecParse, "failed to decode OpenAPI document").WithCause(err)
	}

	idx := &Index{
		doc:        &doc,
		operations: make(map[string]*OperationInfo),
		paths:      make(map[string]map[string]*OperationInfo),
		logger:     logger,
	}
	idx.baseURL = serverURL(doc.Servers)
	idx.build()

	title := ""
	if doc.Info != nil {
		title = doc.Info.Title
	}
	logger.Info("loaded OpenAPI spec",
		zap.String("title", title),
		zap.Int("paths", len(idx.paths)),
		zap.Int("operations", len(idx.operations)),
	)

	return idx, nil
}

// LoadFile reads and indexes an OpenAPI document from disk.
func LoadFile(path string, logger *zap.Logger) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI document: %w", err)
	}
	return Load(data, logger)
}

func (idx *Index) build() {
	if idx.doc.Paths == nil {
		return
	}
	pathItems := idx.doc.Paths.Map()
	paths := make([]string, 0, len(pathItems))
	for p := range pathItems {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := pathItems[path]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			info := idx.operationInfo(path, method, item, op)

			if idx.paths[path] == nil {
				idx.paths[path] = make(map[string]*OperationInfo)
			}
			idx.paths[path][method] = info

			if existing, dup := idx.operations[info.OperationID]; dup {
				// 先注册者优先
				idx.logger.Warn("duplicate operation id, keeping first registration",
					zap.String("operation_id", info.OperationID),
					zap.String("kept", existing.Method+" "+existing.Path),
					zap.String("skipped", method+" "+path),
				)
				continue
			}
			idx.operations[info.OperationID] = info
		}
	}
}

func (idx *Index) operationInfo(path, method string, item *openapi3.PathItem, op *openapi3.Operation) *OperationInfo {
	id := op.OperationID
	if id == "" {
		id = fmt.Sprintf("%s_%s", strings.ToLower(method), path)
	}

	info := &OperationInfo{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        append([]string(nil), op.Tags...),
	}

	// Operation-level parameters override path-level ones with the same name+location.
	seen := make(map[string]bool)
	for _, ref := range op.Parameters {
		if p := idx.parameterInfo(ref); p != nil {
			seen[string(p.In)+":"+p.Name] = true
			info.Parameters = append(info.Parameters, *p)
		}
	}
	for _, ref := range item.Parameters {
		if p := idx.parameterInfo(ref); p != nil && !seen[string(p.In)+":"+p.Name] {
			info.Parameters = append(info.Parameters, *p)
		}
	}

	info.RequestBody = idx.requestBodyInfo(op.RequestBody)
	return info
}

func (idx *Index) parameterInfo(ref *openapi3.ParameterRef) *ParameterInfo {
	param := idx.resolveParameter(ref)
	if param == nil {
		return nil
	}
	return &ParameterInfo{
		Name:        param.Name,
		In:          ParameterLocation(param.In),
		Required:    param.Required,
		Schema:      convertSchema(param.Schema),
		Description: param.Description,
	}
}

// resolveParameter follows at most one level of indirection into
// components.parameters. Unresolvable references yield nil.
func (idx *Index) resolveParameter(ref *openapi3.ParameterRef) *openapi3.Parameter {
	if ref == nil {
		return nil
	}
	if ref.Ref == "" {
		return ref.Value
	}
	name, ok := componentName(ref.Ref, "#/components/parameters/")
	if ok && idx.doc.Components != nil {
		if shared, found := idx.doc.Components.Parameters[name]; found && shared != nil && shared.Ref == "" && shared.Value != nil {
			return shared.Value
		}
	}
	idx.logger.Debug("dropping unresolved parameter reference", zap.String("ref", ref.Ref))
	return nil
}

func (idx *Index) requestBodyInfo(ref *openapi3.RequestBodyRef) *RequestBodyInfo {
	if ref == nil {
		return nil
	}
	body := ref.Value
	if ref.Ref != "" {
		body = nil
		name, ok := componentName(ref.Ref, "#/components/requestBodies/")
		if ok && idx.doc.Components != nil {
			if shared, found := idx.doc.Components.RequestBodies[name]; found && shared != nil && shared.Ref == "" {
				body = shared.Value
			}
		}
		if body == nil {
			idx.logger.Debug("dropping unresolved request body reference", zap.String("ref", ref.Ref))
			return nil
		}
	}
	if body == nil {
		return nil
	}

	info := &RequestBodyInfo{
		Required: body.Required,
		Content:  make(map[string]*types.SchemaInfo, len(body.Content)),
	}
	for mediaType, mt := range body.Content {
		if mt == nil {
			info.Content[mediaType] = nil
			continue
		}
		info.Content[mediaType] = convertSchema(mt.Schema)
	}
	return info
}

// GetOperation looks up an operation by id.
func (idx *Index) GetOperation(operationID string) (*OperationInfo, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// GetPath returns the operations declared on a path, keyed by upper-case method.
func (idx *Index) GetPath(path string) (map[string]*OperationInfo, bool) {
	ops, ok := idx.paths[path]
	if !ok {
		return nil, false
	}
	out := make(map[string]*OperationInfo, len(ops))
	for m, op := range ops {
		out[m] = op
	}
	return out, true
}

// GetOperationByRoute looks up an operation by method and path template.
func (idx *Index) GetOperationByRoute(method, path string) (*OperationInfo, bool) {
	ops, ok := idx.paths[path]
	if !ok {
		return nil, false
	}
	op, ok := ops[strings.ToUpper(method)]
	return op, ok
}

// GetAllOperations returns every indexed operation sorted by id.
func (idx *Index) GetAllOperations() []*OperationInfo {
	ops := make([]*OperationInfo, 0, len(idx.operations))
	for _, op := range idx.operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].OperationID < ops[j].OperationID })
	return ops
}

// GetBaseURL returns the first declared server URL, or "" if none.
func (idx *Index) GetBaseURL() string {
	return idx.baseURL
}

// Document returns the raw parsed document.
func (idx *Index) Document() *openapi3.T {
	return idx.doc
}

func serverURL(servers openapi3.Servers) string {
	if len(servers) == 0 || servers[0] == nil {
		return ""
	}
	url := servers[0].URL
	for name, v := range servers[0].Variables {
		if v != nil {
			url = strings.ReplaceAll(url, "{"+name+"}", v.Default)
		}
	}
	return url
}

func componentName(ref, prefix string) (string, bool) {
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
