package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/engine"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/metrics"
)

// maxRequestLine bounds one NDJSON request line.
const maxRequestLine = 1 << 20

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Input       string
	Acks        bool
	MetricsAddr string

	// IDGenerator and Clock override the engine defaults (for testing).
	IDGenerator engine.IDGenerator
	Clock       engine.TimeSource
}

// RunLine is the outcome of one input line.
type RunLine struct {
	Line    int             `json:"line"`
	Receipt *engine.Receipt `json:"receipt,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RunSummary counts the outcomes of a run.
type RunSummary struct {
	Lines    int `json:"lines"`
	Complete int `json:"complete"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
	Invalid  int `json:"invalid"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a stream of requests through the run loop",
		Long: `Start the single-writer execution loop and feed it requests.

Requests are read as newline-delimited JSON, one request or bare envelope
per line, from --input or stdin. Each is resolved when it carries no
resources, queued in order, and its receipt is written as one output line.
The loop drains its queue and stops at end of input or on SIGINT/SIGTERM.

With --metrics-addr, Prometheus metrics are served on /metrics for the
lifetime of the run.

Examples:
  lzrecv run --db ./lzrecv.db --input requests.ndjson
  tail -f inbox.ndjson | lzrecv run --db ./lzrecv.db --variant deposit --metrics-addr :9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "-", "NDJSON request file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Acks, "acks", false, "compose an ACK for every increment")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// pendingLine is an input line waiting for its result.
type pendingLine struct {
	line  int
	reply <-chan engine.Result
	err   error
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	in := cmd.InOrStdin()
	if opts.Input != "" && opts.Input != "-" {
		file, err := os.Open(opts.Input)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer file.Close()
		in = file
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := st.Config(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read configuration", err)
	}
	variant, acks, err := deploymentSettings(ctx, cmd, opts.RootOptions, st, opts.Acks)
	if err != nil {
		return err
	}

	collector := metrics.New()
	engOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithAcknowledgements(acks),
		engine.WithObserver(collector),
	}
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	if opts.Clock != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Clock))
	}
	eng := engine.New(st, variant, engOpts...)

	if opts.MetricsAddr != "" {
		_, shutdown, err := serveMetrics(opts.MetricsAddr, collector, log)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer shutdown()
	}

	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(ctx) }()

	pending := make(chan pendingLine, 64)
	summaryDone := make(chan RunSummary, 1)
	go func() {
		summaryDone <- writeResults(ctx, opts.Format, cmd.OutOrStdout(), pending)
	}()

	fed := make(chan error, 1)
	go func() { fed <- feedRequests(ctx, in, cfg, variant, eng, pending) }()

	var readErr error
	select {
	case readErr = <-fed:
	case <-ctx.Done():
	}
	eng.Stop()
	summary := <-summaryDone

	if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	log.Info("run finished",
		"lines", summary.Lines,
		"complete", summary.Complete,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
		"invalid", summary.Invalid,
	)
	if readErr != nil {
		return WrapExitError(ExitCommandError, "failed to read input", readErr)
	}
	return nil
}

// feedRequests decodes each input line and queues it. It closes pending
// when input ends.
func feedRequests(ctx context.Context, in io.Reader, cfg ir.Config, variant codec.Variant, eng *engine.Engine, pending chan<- pendingLine) error {
	defer close(pending)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return nil
		}
		text := scanner.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}

		req, err := decodeRequest(text)
		if err == nil {
			req, err = completeRequest(cfg, variant, req)
		}
		if err != nil {
			pending <- pendingLine{line: line, err: err}
			continue
		}

		reply, ok := eng.Enqueue(req)
		if !ok {
			return nil
		}
		pending <- pendingLine{line: line, reply: reply}
	}
	return scanner.Err()
}

// writeResults writes one output line per input line, in input order.
func writeResults(ctx context.Context, format string, w io.Writer, pending <-chan pendingLine) RunSummary {
	var summary RunSummary
	enc := json.NewEncoder(w)

	emit := func(out RunLine) {
		summary.Lines++
		if out.Receipt == nil {
			summary.Invalid++
		} else {
			switch out.Receipt.Status {
			case engine.StatusComplete:
				summary.Complete++
			case engine.StatusFailed:
				summary.Failed++
			default:
				summary.Rejected++
			}
		}
		if format == "json" {
			_ = enc.Encode(out)
			return
		}
		if out.Receipt == nil {
			fmt.Fprintf(w, "%d\tinvalid\t%s\n", out.Line, out.Error)
			return
		}
		rc := out.Receipt
		fmt.Fprintf(w, "%d\t%s\t%s\t%s", out.Line, rc.Status, rc.Stage, rc.GUID)
		if rc.Code != "" {
			fmt.Fprintf(w, "\t%s", rc.Code)
		}
		fmt.Fprintln(w)
	}

	for {
		select {
		case p, ok := <-pending:
			if !ok {
				return summary
			}
			if p.err != nil {
				emit(RunLine{Line: p.line, Error: p.err.Error()})
				continue
			}
			select {
			case res := <-p.reply:
				rc := res.Receipt
				out := RunLine{Line: p.line, Receipt: &rc}
				if res.Err != nil {
					out.Error = res.Err.Error()
				}
				emit(out)
			case <-ctx.Done():
				return summary
			}
		case <-ctx.Done():
			return summary
		}
	}
}

// serveMetrics serves the collector on addr and returns the bound address
// and a shutdown func.
func serveMetrics(addr string, collector *metrics.Collector, log *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	router := mux.NewRouter()
	router.Handle("/metrics", collector.Handler()).Methods(http.MethodGet)
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	bound := ln.Addr().String()
	log.Info("serving metrics", "addr", bound)

	return bound, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
