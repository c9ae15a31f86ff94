package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/toolbridge/interceptor"
	"github.com/BaSui01/toolbridge/types"
)

// 模板语法：{{args.<path>}} 引用调用参数，{{steps.<store_as>.<path>}} 引用前序步骤结果
var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// templateScope resolves references against the invocation arguments and the
// results of settled steps.
type templateScope struct {
	args    []byte
	results map[string]*types.StepResult
}

func newTemplateScope(args map[string]any, results map[string]*types.StepResult) (*templateScope, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	return &templateScope{args: data, results: results}, nil
}

// lookup resolves one reference such as "steps.pet.owner.id".
func (s *templateScope) lookup(ref string) (any, error) {
	root, rest, _ := strings.Cut(ref, ".")
	switch root {
	case "args":
		if rest == "" {
			return nil, fmt.Errorf("empty argument reference %q", ref)
		}
		res := gjson.GetBytes(s.args, rest)
		if !res.Exists() {
			return nil, fmt.Errorf("unresolved reference %q", ref)
		}
		return jsonValue(res), nil
	case "steps":
		key, path, _ := strings.Cut(rest, ".")
		r, ok := s.results[key]
		if !ok || r.Status != types.StepStatusOK {
			return nil, fmt.Errorf("unresolved reference %q: step %q has no result", ref, key)
		}
		if path == "" {
			return r.Data, nil
		}
		res := gjson.GetBytes(r.Raw(), path)
		if !res.Exists() {
			return nil, fmt.Errorf("unresolved reference %q", ref)
		}
		return jsonValue(res), nil
	}
	return nil, fmt.Errorf("unknown reference root in %q", ref)
}

// jsonValue converts a gjson result keeping numbers as json.Number, so
// 64-bit ids survive being passed from one step to the next.
func jsonValue(res gjson.Result) any {
	switch res.Type {
	case gjson.Number:
		return json.Number(res.Raw)
	case gjson.JSON:
		if v, ok := decodeJSON([]byte(res.Raw)); ok {
			return v
		}
	}
	return res.Value()
}

// render substitutes references inside v. A string that is exactly one
// reference takes the referenced value with its JSON type; references
// embedded in longer strings are interpolated as text.
func (s *templateScope) render(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return s.renderString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			r, err := s.render(item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := s.render(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func (s *templateScope) renderString(str string) (any, error) {
	matches := templatePattern.FindAllStringSubmatchIndex(str, -1)
	if len(matches) == 0 {
		return str, nil
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(str) {
		return s.lookup(str[matches[0][2]:matches[0][3]])
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(str[last:m[0]])
		v, err := s.lookup(str[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		b.WriteString(textValue(v))
		last = m[1]
	}
	b.WriteString(str[last:])
	return b.String(), nil
}

// renderText interpolates references into a call target.
func (s *templateScope) renderText(str string) (string, error) {
	v, err := s.renderString(str)
	if err != nil {
		return "", err
	}
	return textValue(v), nil
}

func textValue(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
	return interceptor.FormatValue(v)
}
