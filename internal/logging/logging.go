// Package logging sets up DecentDB's structured logger: a console handler
// fanned out alongside an optional Seq sink via fanoutHandler, which keeps
// delivering to working sinks even when one of them errors.
package logging

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// fanoutHandler duplicates every record across a fixed set of sinks. Unlike
// a single-failure-stops-delivery handler, Handle keeps writing to the
// remaining sinks even if one returns an error, so a broken Seq connection
// never silences the console handler.
type fanoutHandler struct {
	sinks []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range f.sinks {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// remap rebuilds the fanout with each sink transformed by apply — the
// shared tail of WithAttrs and WithGroup, which otherwise differ only in
// which slog.Handler method they call per sink.
func (f *fanoutHandler) remap(apply func(slog.Handler) slog.Handler) *fanoutHandler {
	sinks := make([]slog.Handler, len(f.sinks))
	for i, sink := range f.sinks {
		sinks[i] = apply(sink)
	}
	return &fanoutHandler{sinks: sinks}
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.remap(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	return f.remap(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

// Options configures Setup.
type Options struct {
	// Level is the minimum level logged to the console handler.
	Level slog.Level
	// SeqURL, when non-empty, is the endpoint of a Seq server to mirror
	// structured logs to. Left empty, only the console handler runs.
	SeqURL string
}

// Setup builds the engine-wide logger and returns a cleanup function that
// must run at Db close to flush and release the Seq sink, if any.
func Setup(opts Options) (*slog.Logger, func()) {
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: true,
	})

	if opts.SeqURL == "" {
		return slog.New(console), func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		opts.SeqURL,
		slogseq.WithBatchSize(50),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(&slog.HandlerOptions{
			Level: opts.Level,
		}),
	)
	if seqHandler == nil {
		return slog.New(console), func() {}
	}

	logger := slog.New(&fanoutHandler{sinks: []slog.Handler{console, seqHandler}})
	return logger, func() { seqHandler.Close() }
}
