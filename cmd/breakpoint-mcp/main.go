package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dkattan/breakpoint-mcp/internal/config"
	"github.com/dkattan/breakpoint-mcp/internal/mcp"
	"github.com/dkattan/breakpoint-mcp/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	mode := flag.String("mode", "full", "Capability mode: 'readonly' or 'full'")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("breakpoint-mcp version %s\n", version.Version)
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides config
	switch *mode {
	case "readonly":
		cfg.Mode = config.ModeReadOnly
	case "full":
		cfg.Mode = config.ModeFull
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	setupLogging(cfg.LogLevel)

	checker := version.NewChecker()
	checker.CheckForUpdatesAsync()

	server := mcp.NewServer(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logrus.Info("Shutting down...")
		server.Close()
		os.Exit(0)
	}()

	logrus.Infof("breakpoint-mcp %s starting (%s mode)", version.Version, cfg.Mode)
	if info := checker.GetUpdateInfo(); info != nil {
		if msg := info.UpdateMessage(); msg != "" {
			logrus.Info(msg)
		}
	}

	if err := server.ServeStdio(); err != nil {
		server.Close()
		logrus.Fatalf("Server error: %v", err)
	}
	server.Close()
}

// setupLogging routes logs to stderr; stdout carries the MCP protocol.
func setupLogging(level string) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func printHelp() {
	fmt.Println(`breakpoint-mcp: wait-oriented debugging for AI agents

A Model Context Protocol (MCP) server that lets an agent drive an interactive
debug session end to end: start a program under a debug adapter, arm
breakpoints by line, code snippet, or function name, block until one is hit,
and get back the stopped frame with filtered variables.

USAGE:
    breakpoint-mcp [OPTIONS]

OPTIONS:
    -config <path>     Path to configuration file (JSON)
    -mode <mode>       Capability mode: 'readonly' or 'full' (default: full)
    -log-level <lvl>   Log level: debug, info, warn, error
    -version           Show version and exit
    -help              Show this help message

SUPPORTED LANGUAGES:
    - Go (via Delve)
    - Python (via debugpy)
    - JavaScript/TypeScript (via vscode-js-debug)
    - anything speaking DAP over stdio (via the command adapter)

CONFIGURATION:
    {
        "mode": "full",
        "allowSpawn": true,
        "allowAttach": true,
        "allowEvaluate": true,
        "allowActions": true,
        "defaultStopWaitSeconds": 30,
        "supportsMultipleSessions": false,
        "maxSessions": 10,
        "adapters": {
            "go": {"path": "dlv"},
            "python": {"pythonPath": "python3"},
            "node": {"nodePath": "node", "jsDebugPath": "/path/to/dapDebugServer.js"},
            "command": {"command": "lldb-dap", "languages": ["rust", "c", "cpp"]}
        }
    }

TOOLS:
    Control (full mode only):
        debug_start_wait      Start or reuse a session, arm breakpoints, wait for a stop
        debug_trigger_wait    Arm breakpoints on an existing session and wait
        debug_resume          Resume a paused session without waiting
        debug_stop            Terminate a session

    Inspection (both modes):
        debug_list_sessions   Session tree with status and next-action hints
        debug_get_variables   Variables of the paused frame
        debug_evaluate        Evaluate an expression in the paused frame
        debug_http_request    Out-of-band HTTP request against the debuggee

For more information, visit: https://github.com/dkattan/breakpoint-mcp`)
}
