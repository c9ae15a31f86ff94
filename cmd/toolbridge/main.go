// =============================================================================
// toolbridge 主入口
// =============================================================================
// 把 OpenAPI 后端按工具档案暴露为 MCP 工具
//
// 使用方法:
//
//	toolbridge serve --config toolbridge.yaml   # 通过 stdio 提供 MCP 服务
//	toolbridge serve --profile p.yaml --openapi api.yaml --watch
//	toolbridge tools --config toolbridge.yaml   # 打印生成的工具 schema
//	toolbridge call --config toolbridge.yaml <tool> '<json args>'
//	toolbridge version                          # 显示版本信息
// =============================================================================

package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/toolbridge/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "tools":
		runTools(os.Args[2:])
	case "call":
		runCall(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// ⚙️ 公共参数
// =============================================================================

// commonFlags 是各子命令共享的参数，非空时覆盖配置文件与环境变量
type commonFlags struct {
	configPath  *string
	profilePath *string
	openAPIPath *string
}

func registerCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath:  fs.String("config", "", "Path to config file"),
		profilePath: fs.String("profile", "", "Path to tool profile (overrides config)"),
		openAPIPath: fs.String("openapi", "", "Path to OpenAPI document (overrides config)"),
	}
}

func (f commonFlags) load() (*config.Config, error) {
	loader := config.NewLoader()
	if *f.configPath != "" {
		loader = loader.WithConfigPath(*f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if *f.profilePath != "" {
		cfg.Profile.Path = *f.profilePath
	}
	if *f.openAPIPath != "" {
		cfg.OpenAPI.Path = *f.openAPIPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("toolbridge %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`toolbridge - OpenAPI to MCP tool gateway

Usage:
  toolbridge <command> [options]

Commands:
  serve     Serve the profile's tools over MCP stdio
  tools     Print the generated tool schemas as JSON
  call      Invoke one tool and print the result as JSON
  version   Show version information
  help      Show this help message

Options:
  --config <path>    Path to configuration file (YAML)
  --profile <path>   Path to tool profile (overrides config)
  --openapi <path>   Path to OpenAPI document (overrides config)
  --watch            Reload tools when the profile or document changes (serve)

Examples:
  toolbridge serve --config /etc/toolbridge/config.yaml
  toolbridge serve --profile github.yaml --openapi github-openapi.yaml --watch
  toolbridge tools --profile github.yaml --openapi github-openapi.yaml
  toolbridge call --config config.yaml issues '{"action":"list","owner":"me","repo":"x"}'
  toolbridge version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建 zap logger。stdout 承载 MCP 协议帧，日志只写 stderr 或文件
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       logOutputPaths(cfg.OutputPaths),
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到写 stderr 的基本 logger
		fallback := zap.NewProductionConfig()
		fallback.OutputPaths = []string{"stderr"}
		logger, _ = fallback.Build()
	}
	return logger
}

// logOutputPaths 把 stdout 替换为 stderr
func logOutputPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "stdout" {
			p = "stderr"
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		out = append(out, "stderr")
	}
	return out
}
