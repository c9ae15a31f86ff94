package main

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/gateway"
	"github.com/BaSui01/toolbridge/interceptor"
	internalserver "github.com/BaSui01/toolbridge/internal/server"
	"github.com/BaSui01/toolbridge/types"
)

// =============================================================================
// 🔌 MCP 适配
// =============================================================================

// mcpBridge 把当前运行时的工具注册到 MCP 服务端。热重载时整体替换运行时，
// 进行中的调用继续使用它开始时拿到的运行时
type mcpBridge struct {
	srv      *server.MCPServer
	current  atomic.Pointer[gateway.Runtime]
	loadedAt atomic.Int64
	logger   *zap.Logger
}

func newMCPBridge(name, version string, logger *zap.Logger) *mcpBridge {
	return &mcpBridge{
		srv: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
			server.WithRecovery(),
		),
		logger: logger.With(zap.String("component", "mcp")),
	}
}

// install 切换到新运行时并替换已声明的工具集
func (b *mcpBridge) install(rt *gateway.Runtime) {
	b.current.Store(rt)
	b.loadedAt.Store(time.Now().UnixNano())
	b.srv.SetTools(serverTools(rt.Tools(), b.handler)...)
	b.logger.Info("tools registered",
		zap.String("profile", rt.Profile().Name),
		zap.Int("tools", len(rt.Tools())),
	)
}

// status 供 /healthz 报告当前工具集
func (b *mcpBridge) status() (internalserver.Status, bool) {
	rt := b.current.Load()
	if rt == nil {
		return internalserver.Status{}, false
	}
	st := internalserver.Status{
		Profile:  rt.Profile().Name,
		Tools:    len(rt.Tools()),
		LoadedAt: time.Unix(0, b.loadedAt.Load()).UTC(),
	}
	if r, ok := rt.Pipeline().Limiter().(interceptor.RemainingReporter); ok {
		remaining := r.Remaining()
		st.RateLimitRemaining = &remaining
	}
	return st, true
}

func serverTools(schemas []types.ToolSchema, handler func(name string) server.ToolHandlerFunc) []server.ServerTool {
	out := make([]server.ServerTool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, server.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(s.Name, s.Description, s.Parameters),
			Handler: handler(s.Name),
		})
	}
	return out
}

func (b *mcpBridge) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rt := b.current.Load()
		if rt == nil {
			return mcp.NewToolResultError("no profile loaded"), nil
		}
		result, err := rt.Invoke(ctx, name, req.GetArguments())
		return toolResult(result, err), nil
	}
}

// toolResult 把调用结果映射为 MCP 结果。参数错误与后端错误都以 isError
// 结果返回给模型，而不是协议错误
func toolResult(result *types.ToolResult, err error) *mcp.CallToolResult {
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	data, mErr := json.MarshalIndent(result, "", "  ")
	if mErr != nil {
		return mcp.NewToolResultError("failed to encode tool result: " + mErr.Error())
	}
	if result.IsError {
		return mcp.NewToolResultError(string(data))
	}
	return mcp.NewToolResultText(string(data))
}
