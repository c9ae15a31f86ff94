package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/BaSui01/toolbridge/interceptor"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/tools/toolgen"
	"github.com/BaSui01/toolbridge/tools/validator"
	"github.com/BaSui01/toolbridge/types"
)

// ArgBody is the argument that carries an explicit request body.
const ArgBody = "body"

// preparedCall is an operation bound to concrete arguments.
type preparedCall struct {
	op     *openapi.OperationInfo
	method string
	path   string
	opts   interceptor.RequestOptions
}

// bindArguments maps invocation arguments onto the operation's parameters.
// aliases rename tool argument names to API parameter names. Arguments not
// bound to any parameter become the JSON body when the operation declares
// one and no explicit body argument was given.
func bindArguments(op *openapi.OperationInfo, args map[string]any, aliases map[string]string) (*preparedCall, error) {
	apiArgs := make(map[string]any, len(args))
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	// 别名与原名冲突时，按名称顺序后者覆盖前者
	sort.Strings(names)
	for _, name := range names {
		apiName := name
		if alias, ok := aliases[name]; ok && alias != "" {
			apiName = alias
		}
		apiArgs[apiName] = args[name]
	}

	call := &preparedCall{
		op:     op,
		method: op.Method,
		path:   op.Path,
		opts: interceptor.RequestOptions{
			Headers: make(map[string]string),
			Query:   make(map[string]any),
		},
	}

	consumed := map[string]bool{ArgBody: true}
	var cookies []string
	for _, p := range op.Parameters {
		v, ok := apiArgs[p.Name]
		if !ok || v == nil {
			if p.Required && p.In == openapi.InPath {
				return nil, types.Errorf(types.ErrMissingRequiredParameter, "missing path parameter %q", p.Name).
					WithHTTPStatus(http.StatusBadRequest).
					WithDetail("parameter", p.Name).
					WithDetail("operation", op.OperationID)
			}
			continue
		}
		consumed[p.Name] = true

		switch p.In {
		case openapi.InPath:
			call.path = strings.ReplaceAll(call.path, "{"+p.Name+"}", url.PathEscape(interceptor.FormatValue(v)))
		case openapi.InQuery:
			call.opts.Query[p.Name] = v
		case openapi.InHeader:
			call.opts.Headers[p.Name] = interceptor.FormatValue(v)
		case openapi.InCookie:
			cookies = append(cookies, (&http.Cookie{Name: p.Name, Value: interceptor.FormatValue(v)}).String())
		}
	}
	if len(cookies) > 0 {
		call.opts.Headers["Cookie"] = strings.Join(cookies, "; ")
	}

	body, hasBody := apiArgs[ArgBody]
	if !hasBody && op.RequestBody != nil {
		rest := make(map[string]any)
		for name, v := range apiArgs {
			if consumed[name] || name == toolgen.ArgAction || name == toolgen.ArgResourceType {
				continue
			}
			rest[name] = v
		}
		if len(rest) > 0 {
			body, hasBody = rest, true
		}
	}

	if err := checkBody(op, body, hasBody); err != nil {
		return nil, err
	}
	if hasBody {
		call.opts.Body = body
	}
	return call, nil
}

// checkBody validates the request body against the operation's JSON schema
// before anything reaches the network.
func checkBody(op *openapi.OperationInfo, body any, present bool) error {
	if op.RequestBody == nil {
		return nil
	}
	if !present || body == nil {
		if op.RequestBody.Required {
			return types.Errorf(types.ErrValidation, "operation %s requires a request body", op.OperationID).
				WithHTTPStatus(http.StatusBadRequest)
		}
		return nil
	}
	schema, ok := op.RequestBody.JSONSchema()
	if !ok || schema == nil {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return types.NewError(types.ErrValidation, "request body is not JSON-encodable").
			WithHTTPStatus(http.StatusBadRequest).
			WithCause(err)
	}
	return validator.ValidateJSON(data, schema).Err()
}

// rawCall builds a call for a "METHOD /path" target that is not declared in
// the OpenAPI document. Arguments go to the query string, or to the body for
// methods that carry one.
func rawCall(target string, args map[string]any) (*preparedCall, error) {
	method, path, ok := strings.Cut(strings.TrimSpace(target), " ")
	path = strings.TrimSpace(path)
	if !ok || path == "" || strings.Contains(path, "{") {
		return nil, types.Errorf(types.ErrUnresolvedOperation, "cannot resolve call target %q", target)
	}
	method = strings.ToUpper(method)

	call := &preparedCall{
		op:     &openapi.OperationInfo{OperationID: method + " " + path, Method: method, Path: path},
		method: method,
		path:   path,
		opts:   interceptor.RequestOptions{Query: make(map[string]any)},
	}
	if body, ok := args[ArgBody]; ok {
		call.opts.Body = body
		return call, nil
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if len(args) > 0 {
			call.opts.Body = args
		}
	default:
		for k, v := range args {
			call.opts.Query[k] = v
		}
	}
	return call, nil
}

// decodeBody returns the JSON value of a response body, or the body as a
// string when it is not JSON.
func decodeBody(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	if v, ok := decodeJSON(data); ok {
		return v
	}
	return string(data)
}

// decodeJSON decodes exactly one JSON value with numbers kept as json.Number.
func decodeJSON(data []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return v, true
}

func statusError(status int) string {
	return fmt.Sprintf("backend returned status %d %s", status, http.StatusText(status))
}
