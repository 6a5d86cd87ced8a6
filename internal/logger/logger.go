// Package logger provides the process-wide structured logger for the plugin
// host runtime.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", "tdplug").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

// Component returns a logger tagged with the given component name, e.g.
// logger.Component("registry") for manifest discovery and registry events,
// logger.Component("installer") for install and marketplace operations.
func Component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Registry creates a logger for manifest discovery and registry events.
func Registry() *zerolog.Logger { return Component("registry") }

// Loader creates a logger for the dynamic loader.
func Loader() *zerolog.Logger { return Component("loader") }

// Executor creates a logger for the command executor.
func Executor() *zerolog.Logger { return Component("executor") }

// Config creates a logger for the per-plugin config loader.
func Config() *zerolog.Logger { return Component("config") }

// Keybinding creates a logger for keybinding integration.
func Keybinding() *zerolog.Logger { return Component("keybinding") }

// Dispatcher creates a logger for the event dispatcher.
func Dispatcher() *zerolog.Logger { return Component("dispatcher") }

// Installer creates a logger for install and marketplace operations.
func Installer() *zerolog.Logger { return Component("installer") }
