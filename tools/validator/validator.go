package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/toolbridge/types"
)

// RootPath is how an empty path renders in messages.
const RootPath = "(root)"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidationError is one schema violation at a specific location.
type ValidationError struct {
	Path    string            `json:"path"`
	Message string            `json:"message"`
	Schema  *types.SchemaInfo `json:"schema,omitempty"`
	Value   any               `json:"value,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", displayPath(e.Path), e.Message)
}

// Result is the outcome of a validation run.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err converts an invalid result into a VALIDATION_ERROR carrying every violation.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	msg := "validation failed"
	if len(msgs) == 1 {
		msg = msgs[0]
	} else if len(msgs) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors: %s", len(msgs), strings.Join(msgs, "; "))
	}
	return types.NewError(types.ErrValidation, msg).
		WithHTTPStatus(http.StatusBadRequest).
		WithDetail("errors", r.Errors)
}

// Validate checks value against schema. path prefixes every reported location.
func Validate(value any, schema *types.SchemaInfo, path string) Result {
	var errs []ValidationError
	validateValue(value, schema, path, &errs)
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateJSON decodes data (numbers kept as json.Number) and validates it.
func ValidateJSON(data []byte, schema *types.SchemaInfo) Result {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return Result{Errors: []ValidationError{{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Schema:  schema,
		}}}
	}
	return Validate(value, schema, "")
}

func validateValue(value any, schema *types.SchemaInfo, path string, errs *[]ValidationError) {
	if schema == nil {
		return
	}

	kind := kindOf(value)
	if kind == kindNull {
		if schema.Type != "" && !schema.Nullable {
			*errs = append(*errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("Expected %s, got null", schema.Type),
				Schema:  schema,
				Value:   value,
			})
		}
		return
	}

	// 类型不匹配时不再检查子节点
	if schema.Type != "" && !matchesType(value, kind, schema.Type) {
		*errs = append(*errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("Expected %s, got %s", schema.Type, kind),
			Schema:  schema,
			Value:   value,
		})
		return
	}

	if len(schema.Enum) > 0 && !inEnum(value, schema.Enum) {
		*errs = append(*errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("Value must be one of: %v", schema.Enum),
			Schema:  schema,
			Value:   value,
		})
	}

	switch kind {
	case kindObject:
		validateObject(value, schema, path, errs)
	case kindArray:
		if schema.Items == nil {
			return
		}
		rv := reflect.ValueOf(value)
		for i := 0; i < rv.Len(); i++ {
			validateValue(rv.Index(i).Interface(), schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	case kindString:
		if schema.Type == types.SchemaTypeString && schema.Format != "" {
			validateFormat(value.(string), schema, path, errs)
		}
	}
}

func validateObject(value any, schema *types.SchemaInfo, path string, errs *[]ValidationError) {
	obj := objectFields(value)

	for _, name := range schema.Required {
		if _, ok := obj[name]; !ok {
			*errs = append(*errs, ValidationError{
				Path:    joinPath(path, name),
				Message: "Required property is missing",
				Schema:  schema.Properties[name],
			})
		}
	}

	// 额外属性一律放行
	names := make([]string, 0, len(obj))
	for name := range obj {
		if _, declared := schema.Properties[name]; declared {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		validateValue(obj[name], schema.Properties[name], joinPath(path, name), errs)
	}
}

func validateFormat(s string, schema *types.SchemaInfo, path string, errs *[]ValidationError) {
	var ok bool
	switch schema.Format {
	case types.FormatEmail:
		ok = emailPattern.MatchString(s)
	case types.FormatURI:
		u, err := url.Parse(s)
		ok = err == nil && u.Scheme != "" && (u.Host != "" || u.Opaque != "")
	default:
		return
	}
	if !ok {
		*errs = append(*errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("Invalid %s format", schema.Format),
			Schema:  schema,
			Value:   s,
		})
	}
}

type valueKind string

const (
	kindNull    valueKind = "null"
	kindBoolean valueKind = "boolean"
	kindNumber  valueKind = "number"
	kindString  valueKind = "string"
	kindArray   valueKind = "array"
	kindObject  valueKind = "object"
	kindUnknown valueKind = "unknown"
)

func kindOf(value any) valueKind {
	switch value.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBoolean
	case string:
		return kindString
	case json.Number:
		return kindNumber
	case map[string]any:
		return kindObject
	case []any:
		return kindArray
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return kindNumber
	case reflect.Slice, reflect.Array:
		return kindArray
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return kindObject
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return kindNull
		}
		return kindOf(rv.Elem().Interface())
	}
	return kindUnknown
}

func matchesType(value any, kind valueKind, want types.SchemaType) bool {
	switch want {
	case types.SchemaTypeString:
		return kind == kindString
	case types.SchemaTypeBoolean:
		return kind == kindBoolean
	case types.SchemaTypeNumber:
		return kind == kindNumber
	case types.SchemaTypeInteger:
		if kind != kindNumber {
			return false
		}
		f, ok := toFloat(value)
		return ok && f == math.Trunc(f)
	case types.SchemaTypeArray:
		return kind == kindArray
	case types.SchemaTypeObject:
		return kind == kindObject
	}
	// 未知类型不做限制
	return true
}

func objectFields(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

func inEnum(value any, enum []any) bool {
	for _, candidate := range enum {
		if equalValues(value, candidate) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case bool, string, nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return RootPath
	}
	return path
}
