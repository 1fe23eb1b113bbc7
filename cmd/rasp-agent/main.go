package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/rasp-agent/internal/algorithms/deserialization"
	"github.com/triage-ai/rasp-agent/internal/algorithms/expression"
	"github.com/triage-ai/rasp-agent/internal/algorithms/file"
	"github.com/triage-ai/rasp-agent/internal/algorithms/sqli"
	"github.com/triage-ai/rasp-agent/internal/module"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "rasp-agent",
	Short:         "Runtime application self-protection agent",
	Long:          "Hosts detection algorithm modules, applies their configuration and answers checks for intercepted calls.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config-file", "c", "", "Path to rasp-agent.yaml (default: ./rasp-agent.yaml, /etc/rasp-agent/rasp-agent.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errBlocked) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "rasp-agent:", err)
		os.Exit(1)
	}
}

// bundles lists every algorithm module shipped with the agent.
func bundles() []module.Bundle {
	return []module.Bundle{
		deserialization.Bundle(),
		expression.Bundle(),
		sqli.Bundle(),
		file.Bundle(),
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
