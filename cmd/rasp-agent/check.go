package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triage-ai/rasp-agent/internal/api"
	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/loader"
	"github.com/triage-ai/rasp-agent/internal/module"
	"github.com/triage-ai/rasp-agent/internal/storage"
)

// errBlocked makes the check command exit non-zero on a block verdict.
var errBlocked = errors.New("blocked")

var (
	checkAlgorithms    []string
	checkConfig        []string
	checkRequestParams []string
	checkVerbose       bool
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringSliceVarP(&checkAlgorithms, "algorithm", "a", nil, "Algorithm type to run (repeatable, runs in order)")
	checkCmd.Flags().StringArrayVar(&checkConfig, "config", nil, "Module config entry key=value (repeatable)")
	checkCmd.Flags().StringArrayVar(&checkRequestParams, "request-param", nil, "Request parameter name=value seen by input-correlating checks (repeatable)")
	checkCmd.Flags().BoolVarP(&checkVerbose, "verbose", "v", false, "Log module lifecycle and attack records")
	checkCmd.MarkFlagRequired("algorithm") //nolint:errcheck
}

var checkCmd = &cobra.Command{
	Use:   "check --algorithm TYPE [flags] PARAM...",
	Short: "Run one check offline and print the verdict",
	Long: "Activates the bundled modules with the given configuration, runs the named\n" +
		"algorithms over PARAM... and prints the verdict as JSON.\n\n" +
		"Exits with status 2 when the verdict is block.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := parsePairs(checkConfig)
		if err != nil {
			return err
		}
		reqParams, err := parsePairs(checkRequestParams)
		if err != nil {
			return err
		}
		logger := zap.NewNop()
		if checkVerbose {
			logger = mustBuildLogger("debug")
		}
		return runCheck(cmd.Context(), cmd.OutOrStdout(), logger, checkAlgorithms, cfg, reqParams, args)
	},
}

func runCheck(ctx context.Context, out io.Writer, logger *zap.Logger, algorithms []string, cfg, reqParams map[string]string, args []string) error {
	registry := engine.NewRegistry()
	core := module.NewCoreLoader(storage.NewSink(storage.NewLogWriter(logger), logger), registry, logger)
	manager := module.NewManager(logger)
	business := &loader.BusinessHolder{}
	configs := map[string]map[string]string{}
	for _, b := range bundles() {
		manager.Add(module.NewAlgorithmModule(b, core, business, logger))
		configs[b.ID] = cfg
	}
	if err := manager.Apply(ctx, configs); err != nil {
		return err
	}
	defer manager.UnloadAll(context.Background()) //nolint:errcheck

	for _, a := range algorithms {
		if _, ok := registry.Lookup(a); !ok {
			return fmt.Errorf("unknown algorithm %q (known: %s)", a, strings.Join(registry.IDs(), ", "))
		}
	}

	cc := engine.NewCallContext()
	cc.Parameters = make(map[string][]string, len(reqParams))
	for k, v := range reqParams {
		cc.Parameters[k] = []string{v}
	}
	params := make([]any, len(args))
	for i, a := range args {
		params[i] = a
	}

	start := time.Now()
	v := engine.NewPipeline(registry, nil, logger).CheckAll(cc, algorithms, params...)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(api.NewCheckResponse(cc, v, time.Since(start))); err != nil {
		return err
	}
	if v.Blocked() {
		return errBlocked
	}
	return nil
}

// parsePairs turns key=value entries into a map. Later entries win.
func parsePairs(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid entry %q: want key=value", e)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
