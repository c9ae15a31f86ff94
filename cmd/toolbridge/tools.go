package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaSui01/toolbridge/gateway"
	"github.com/BaSui01/toolbridge/types"
)

// =============================================================================
// 🧰 tools / call 命令
// =============================================================================

func runTools(args []string) {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	flags := registerCommonFlags(fs)
	fs.Parse(args)

	rt, closeApp := mustBuild(flags)
	defer closeApp()

	if err := writeJSON(os.Stdout, rt.Tools()); err != nil {
		exitf("Failed to write tools: %v", err)
	}
}

func runCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	flags := registerCommonFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 || fs.NArg() > 2 {
		exitf("Usage: toolbridge call [options] <tool> ['<json args>']")
	}
	toolArgs, err := parseToolArgs(fs.Arg(1))
	if err != nil {
		exitf("Invalid tool arguments: %v", err)
	}

	rt, closeApp := mustBuild(flags)
	defer closeApp()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := rt.Invoke(ctx, fs.Arg(0), toolArgs)
	if err != nil {
		if e, ok := types.AsError(err); ok {
			writeJSON(os.Stderr, e)
		}
		exitf("Call failed: %v", err)
	}
	if err := writeJSON(os.Stdout, result); err != nil {
		exitf("Failed to write result: %v", err)
	}
	if result.IsError {
		os.Exit(2)
	}
}

func mustBuild(flags commonFlags) (*gateway.Runtime, func()) {
	cfg, err := flags.load()
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	logger := initLogger(cfg.Log)

	a := newApp(cfg, logger)
	rt, err := a.build()
	if err != nil {
		a.close()
		exitf("Failed to build tools: %v", err)
	}
	return rt, func() {
		a.close()
		logger.Sync()
	}
}

// parseToolArgs 解析 JSON 对象形式的调用参数，空串视为无参数
func parseToolArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
