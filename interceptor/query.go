package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/toolbridge/types"
)

// ArrayFormatMiddleware renders req.Query into req.RawQuery.
func ArrayFormatMiddleware(format types.ArrayFormat) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			req.RawQuery = EncodeQuery(req.Query, format)
			return next(ctx, req)
		}
	}
}

// EncodeQuery serializes query values with keys in sorted order. Array values
// render per format:
//
//	brackets  key[]=v1&key[]=v2
//	indices   key[0]=v1&key[1]=v2
//	repeat    key=v1&key=v2 (default)
//	comma     key=v1,v2
func EncodeQuery(values map[string]any, format types.ArrayFormat) string {
	keys := make([]string, 0, len(values))
	for k, v := range values {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	add := func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}

	for _, k := range keys {
		key := url.QueryEscape(k)
		items, isArray := arrayItems(values[k])
		if !isArray {
			add(key, url.QueryEscape(FormatValue(values[k])))
			continue
		}
		switch format {
		case types.ArrayFormatBrackets:
			for _, item := range items {
				add(key+"[]", url.QueryEscape(item))
			}
		case types.ArrayFormatIndices:
			for i, item := range items {
				add(fmt.Sprintf("%s[%d]", key, i), url.QueryEscape(item))
			}
		case types.ArrayFormatComma:
			if len(items) == 0 {
				continue
			}
			escaped := make([]string, len(items))
			for i, item := range items {
				escaped[i] = url.QueryEscape(item)
			}
			add(key, strings.Join(escaped, ","))
		default:
			for _, item := range items {
				add(key, url.QueryEscape(item))
			}
		}
	}
	return b.String()
}

func arrayItems(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		if item == nil {
			continue
		}
		out = append(out, FormatValue(item))
	}
	return out, true
}

// FormatValue renders a scalar argument the way it travels in a URL or header.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case float64:
		// JSON 数字解码为 float64，整数值按整数输出
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
