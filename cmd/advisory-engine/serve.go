package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asimihsan/advisory_engine/internal/decision"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

var workers int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Evaluate newline-delimited requests from stdin and serve metrics",
	Long: `Serve reads one JSON request per line from stdin and writes one JSON
response per line to stdout. Responses carry the input line number and may
arrive out of order. Prometheus metrics are served on the configured address.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&workers, "workers", runtime.GOMAXPROCS(0), "Requests evaluated concurrently")
}

type response struct {
	Line   int                      `json:"line"`
	Result *advisory.AdvisoryResult `json:"result,omitempty"`
	Error  *responseError           `json:"error,omitempty"`
}

type responseError struct {
	Code    advisory.ErrorCode `json:"code"`
	Message string             `json:"message"`
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return serveLines(ctx, engine, cmd.InOrStdin(), cmd.OutOrStdout(), workers)
}

// serveLines evaluates each input line on a bounded pool of workers.
func serveLines(ctx context.Context, engine *decision.Engine, in io.Reader, out io.Writer, limit int) error {
	var mu sync.Mutex
	enc := json.NewEncoder(out)
	write := func(r response) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(r)
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 32<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := append([]byte(nil), scanner.Bytes()...)
		if len(raw) == 0 {
			continue
		}
		n := line
		g.Go(func() error {
			return write(handleLine(gctx, engine, n, raw))
		})
		if gctx.Err() != nil {
			break
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return nil
}

func handleLine(ctx context.Context, engine *decision.Engine, line int, raw []byte) response {
	var rec advisory.RequestRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return response{Line: line, Error: &responseError{Code: advisory.CodeInvalidInput, Message: err.Error()}}
	}
	req, err := rec.Request()
	if err != nil {
		return response{Line: line, Error: &responseError{Code: advisory.CodeInvalidInput, Message: err.Error()}}
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := engine.Evaluate(rctx, req)
	if err != nil {
		re := &responseError{Code: advisory.CodeInternal, Message: err.Error()}
		if ee, ok := advisory.AsEngineError(err); ok {
			re.Code = ee.Code
			if ee.Message != "" {
				re.Message = ee.Message
			}
		}
		return response{Line: line, Error: re}
	}
	return response{Line: line, Result: &result}
}
