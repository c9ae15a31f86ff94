package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	invocationIDKey contextKey = "invocation_id"
	toolKey         contextKey = "tool"
)

// WithInvocationID 设置工具调用 ID
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// InvocationID 获取工具调用 ID
func InvocationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(invocationIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTool 设置工具名
func WithTool(ctx context.Context, tool string) context.Context {
	return context.WithValue(ctx, toolKey, tool)
}

// Tool 获取工具名
func Tool(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(toolKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
