// =============================================================================
// flowcore 主入口
// =============================================================================
// 工作流执行引擎命令行，包含运行、测试、管理命令与 WebSocket 服务
//
// 使用方法:
//
//	flowcore serve --config flowcore.yaml            # 启动服务
//	flowcore run --agent <id> --input '{...}'        # 运行已存储的工作流
//	flowcore run --workflow graph.yaml --trace       # 运行文件中的工作流并输出轨迹
//	flowcore test --agent <id> --expected out.json   # 比对运行结果
//	flowcore agent create --tenant <id> --name <n>   # 管理 agent
//	flowcore plugin add --tenant <id> --file p.lua   # 管理插件
//	flowcore memory add --subject <id> --content ... # 写入会话记忆
//	flowcore migrate up                              # 运行数据库迁移
//	flowcore version                                 # 显示版本信息
//
// =============================================================================
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/flowcore/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage 表示参数错误，已向 stderr 打印用法
var errUsage = errors.New("usage error")

// command 是一个子命令入口
type command func(args []string, stdout io.Writer) error

var commands = map[string]command{
	"serve":   runServe,
	"run":     runWorkflow,
	"test":    runTest,
	"agent":   runAgent,
	"plugin":  runPlugin,
	"memory":  runMemory,
	"migrate": runMigrate,
	"health":  runHealthCheck,
}

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}
	if err := cmd(args[1:], stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

// =============================================================================
// 🔧 公共辅助
// =============================================================================

// commonFlags 是所有需要配置的命令共用的参数
type commonFlags struct {
	configPath string
}

func newFlagSet(name string, cf *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cf.configPath, "config", "", "Path to config file (YAML)")
	return fs
}

// loadConfig 加载并校验配置，构建日志器
func loadConfig(cf commonFlags) (*config.Config, *zap.Logger, zap.AtomicLevel, error) {
	loader := config.NewLoader()
	if cf.configPath != "" {
		loader = loader.WithConfigPath(cf.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, zap.AtomicLevel{}, fmt.Errorf("invalid config: %w", err)
	}
	logger, level := initLogger(cfg.Log)
	return cfg, logger, level, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(stdout, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "flowcore %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `flowcore - workflow execution engine

Usage:
  flowcore <command> [options]

Commands:
  serve     Start the HTTP/WebSocket server
  run       Run a stored or file-based workflow
  test      Run a workflow and diff its result against an expected document
  agent     Manage agents and their workflows
  plugin    Manage tenant plugins
  memory    Record conversation messages
  migrate   Database migration commands
  health    Check server health
  version   Show version information
  help      Show this help message

Every command except version, help and health accepts --config <path>.
Environment variables prefixed with FLOWCORE_ override the file.

Examples:
  flowcore serve --config /etc/flowcore/flowcore.yaml
  flowcore run --agent 3f2a... --tenant acme --input '{"messages":[{"role":"user","content":"hi"}]}'
  flowcore run --workflow graph.yaml --trace
  flowcore migrate up`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// initLogger 构建日志器，返回的 AtomicLevel 供配置热更新调整级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger, level
}
