// Command dedupstream reads an input file, splits it into content-
// defined chunks, deduplicates and compresses the unique ones, and
// writes the result as a single archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/dedupstream/internal/audit"
	"github.com/kenneth/dedupstream/internal/config"
	"github.com/kenneth/dedupstream/internal/debug"
	"github.com/kenneth/dedupstream/internal/metrics"
	"github.com/kenneth/dedupstream/internal/middleware"
	"github.com/kenneth/dedupstream/internal/pipeline"
	"github.com/kenneth/dedupstream/internal/preload"
	"github.com/kenneth/dedupstream/internal/s3sink"
	"github.com/kenneth/dedupstream/internal/tracing"
)

func main() {
	os.Exit(run())
}

func run() int {
	// -config must be known before the rest of the flags are bound
	// (their defaults come from the loaded file), so it is scanned out
	// of argv separately from the single flag.FlagSet that owns every
	// other option.
	cfg, err := config.Load(scanConfigFlag(os.Args[1:]))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	fs := flag.NewFlagSet("dedupstream", flag.ContinueOnError)
	fs.String("config", "", "optional YAML config file; flags below override its values")
	cfg.BindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	warnings, err := cfg.Validate()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := logrus.New()
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	debug.InitFromLogLevel(logger.GetLevel().String())
	for _, w := range warnings {
		logger.Warn(string(w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing, err := tracing.Setup(cfg.TraceExporter, "")
	if err != nil {
		logger.WithError(err).Error("tracing setup failed")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	reg := metrics.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, cfg.UploadS3, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.MetricsAddr != "" {
		reg.StartSystemMetricsCollector(ctx)
	}

	in, err := os.Open(cfg.Infile)
	if err != nil {
		logger.WithError(err).Error("open input")
		return 1
	}
	defer in.Close()

	out, err := os.Create(cfg.Outfile)
	if err != nil {
		logger.WithError(err).Error("create output")
		return 1
	}
	defer out.Close()

	p, err := pipeline.New(cfg, reg, logger)
	if err != nil {
		logger.WithError(err).Error("construct pipeline")
		return 1
	}

	var src io.Reader = in
	if cfg.Preloading {
		buf, err := preload.Load(in, cfg.MmapPreload)
		if err != nil {
			logger.WithError(err).Error("preload input")
			return 1
		}
		defer buf.Release()
		src = &bufferReader{data: buf.Bytes()}
	}

	start := time.Now()
	stats, runErr := p.Run(ctx, src, out)
	elapsed := time.Since(start)

	if cfg.Audit.Enabled {
		auditor, auditErr := audit.NewLoggerFromConfig(cfg.Audit)
		if auditErr != nil {
			logger.WithError(auditErr).Warn("audit logger setup failed")
		} else {
			auditor.LogRun(cfg.Infile, cfg.Outfile, cfg.CompressType, audit.RunStats{
				BytesIn:         stats.BytesIn,
				BytesOutArchive: stats.BytesOutArchive,
				ChunksTotal:     stats.ChunksTotal,
				ChunksDuplicate: stats.ChunksDuplicate,
			}, runErr == nil, runErr, elapsed, nil)
			auditor.Close()
		}
	}

	if runErr != nil {
		logger.WithError(runErr).Error("pipeline run failed")
		return 1
	}

	if cfg.Verbose {
		logger.WithFields(logrus.Fields{
			"elapsed":        elapsed,
			"bytes_in":       stats.BytesIn,
			"bytes_out":      stats.BytesOutArchive,
			"chunks_total":   stats.ChunksTotal,
			"chunks_dup":     stats.ChunksDuplicate,
			"unique_chunks":  stats.UniqueChunks,
			"records_out":    stats.RecordsOutArchive,
		}).Info("run complete")
	}

	if cfg.UploadS3 != "" {
		if err := uploadArchive(ctx, cfg, logger); err != nil {
			logger.WithError(err).Error("archive upload failed")
			return 1
		}
	}

	return 0
}

// scanConfigFlag pulls a -config/--config value out of argv without
// engaging the flag package, which cannot yet know about the other
// flags config.BindFlags will register once the file is loaded.
func scanConfigFlag(argv []string) string {
	for i, arg := range argv {
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(argv) {
				return argv[i+1]
			}
		case len(arg) > 8 && arg[:8] == "-config=":
			return arg[8:]
		case len(arg) > 9 && arg[:9] == "--config=":
			return arg[9:]
		}
	}
	return ""
}

func uploadArchive(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	bucket, key, err := s3sink.ParseURL(cfg.UploadS3)
	if err != nil {
		return err
	}
	f, err := os.Open(cfg.Outfile)
	if err != nil {
		return fmt.Errorf("reopen archive for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	up, err := s3sink.NewUploader(ctx)
	if err != nil {
		return err
	}
	if err := up.Upload(ctx, bucket, key, f, info.Size()); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"bucket": bucket, "key": key}).Info("archive uploaded")
	return nil
}

// s3DepCheck builds the readiness probe's dependency check from the
// configured upload destination: if this run is going to try to upload
// its archive to S3 when it finishes, readiness should reflect whether
// that destination is reachable right now, not just that the process
// is up. Returns nil when no upload is configured — readiness then
// never depends on S3 at all.
func s3DepCheck(uploadS3 string) func(context.Context) error {
	if uploadS3 == "" {
		return nil
	}
	bucket, _, err := s3sink.ParseURL(uploadS3)
	if err != nil {
		return func(context.Context) error { return err }
	}
	return func(ctx context.Context) error {
		up, err := s3sink.NewUploader(ctx)
		if err != nil {
			return err
		}
		return up.Reachable(ctx, bucket)
	}
}

func startMetricsServer(addr, uploadS3 string, reg *metrics.Registry, logger *logrus.Logger) *http.Server {
	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))
	r.Handle("/metrics", reg.Handler())
	r.HandleFunc("/healthz", metrics.HealthHandler())
	r.HandleFunc("/livez", metrics.LivenessHandler())
	r.HandleFunc("/readyz", metrics.ReadinessHandler(s3DepCheck(uploadS3)))

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}

// bufferReader adapts a preloaded in-memory slice to io.Reader without
// an extra copy, for the Fragmenter's ReadFull-based batching loop.
type bufferReader struct {
	data []byte
	off  int
}

func (b *bufferReader) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}
