// Package cmd contains the parley CLI: command routing, logger setup, and the
// serve and migrate entry points. main.go stays a minimal shim around
// Execute, the pattern used by kubectl, hugo, and most Go CLI tools.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/parleyhq/parley/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the parley CLI.
// With no arguments it runs the HTTP server.
func Execute() error {
	// version and help work even when config is invalid.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersionInfo()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return runMigrate(initLogger())
		case "serve":
			return runServe(initLogger())
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	return runServe(initLogger())
}

// initLogger builds the process logger. DEBUG (any value) enables debug
// logging; PARLEY_LOG_JSON switches to the JSON handler.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("PARLEY_LOG_JSON") != "",
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func printVersionInfo() {
	fmt.Printf("parley v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Print(`parley - conversational chat backend

Usage:
  parley [command]

Commands:
  serve     Run the HTTP server (default)
  migrate   Apply database migrations and exit
  version   Show version information
  help      Show this help

Environment:
  GEMINI_API_KEY   Completion provider API key (required for serve)
  DATABASE_URL     PostgreSQL connection URL (overrides postgres_* settings)
  DEBUG            Enable debug logging
`)
}
