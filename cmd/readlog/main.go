package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/app"
	"github.com/justyntemme/readlog/internal/cache"
	"github.com/justyntemme/readlog/internal/config"
	"github.com/justyntemme/readlog/internal/logging"
)

// CLI is the readlog command structure
type CLI struct {
	Config string `short:"c" help:"Path to YAML config file (defaults to ./readlog.yaml when present)"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API server"`
	Search  SearchCmd  `cmd:"" help:"Search books through the configured providers"`
	Extract ExtractCmd `cmd:"" help:"Extract text from a page photo"`
}

// ServeCmd runs the API server
type ServeCmd struct {
	Addr string `help:"Server bind address (e.g. :8080), overrides server.addr"`
}

// SearchCmd prints a search response as JSON
type SearchCmd struct {
	Query []string `arg:"" help:"Search terms"`
}

// ExtractCmd prints extracted text as JSON
type ExtractCmd struct {
	File string `arg:"" type:"existingfile" help:"Image file to read"`
}

// runEnv is bound into every command's Run method
type runEnv struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

var execute = run

func main() {
	if err := execute(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "readlog:", err)
		os.Exit(1)
	}
}

func newParser(cli *CLI, out io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("readlog"),
		kong.Description("Reading log backend: library, notes, book search and page text extraction."),
		kong.UsageOnError(),
		kong.Writers(out, os.Stderr),
	)
}

func run(args []string, out io.Writer) error {
	var cli CLI
	parser, err := newParser(&cli, out)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	return kctx.Run(&runEnv{cfg: cfg, log: log, out: out})
}

func (s *ServeCmd) Run(rt *runEnv) error {
	if s.Addr != "" {
		rt.cfg.Server.Addr = s.Addr
	}

	application, err := app.New(rt.cfg, rt.log)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Close()

	srv := &http.Server{
		Addr:              application.Addr(),
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	rt.log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	rt.log.Info("server exited")
	return nil
}

func (s *SearchCmd) Run(rt *runEnv) error {
	svc, err := app.NewSearchService(rt.cfg.Search, cache.Nop{}, rt.log)
	if err != nil {
		return err
	}
	resp, err := svc.Search(context.Background(), strings.Join(s.Query, " "))
	if err != nil {
		return err
	}
	return writeJSON(rt.out, resp)
}

func (e *ExtractCmd) Run(rt *runEnv) error {
	image, err := os.ReadFile(e.File)
	if err != nil {
		return err
	}
	svc, err := app.NewExtractService(rt.cfg.OCR, cache.Nop{}, rt.log)
	if err != nil {
		return err
	}
	text, err := svc.Extract(context.Background(), image)
	if err != nil {
		return err
	}
	return writeJSON(rt.out, text)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
