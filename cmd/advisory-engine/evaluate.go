package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asimihsan/advisory_engine/internal/decision"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

var speakPath string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [request.json]",
	Short: "Evaluate one request and print the advisory result",
	Long: `Evaluate reads a request document from the file argument, or from stdin
when no file is given, and prints the advisory result as JSON.

With --speak the top recommendation is also synthesized to the given file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&speakPath, "speak", "", "Write synthesized audio of the top action to this file")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening request: %w", err)
		}
		defer f.Close()
		in = f
	}

	var rec advisory.RequestRecord
	if err := json.NewDecoder(in).Decode(&rec); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	req, err := rec.Request()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	result, err := engine.Evaluate(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if speakPath != "" {
		return speak(ctx, engine, result, speakPath)
	}
	return nil
}

func speak(ctx context.Context, engine *decision.Engine, result advisory.AdvisoryResult, path string) error {
	audio, err := engine.Speak(ctx, result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("writing audio: %w", err)
	}
	logger.Info("Wrote synthesized advice", zap.String("path", path), zap.Int("bytes", len(audio)))
	return nil
}
