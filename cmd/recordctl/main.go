package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/recordsync/internal/client/cli"
	"github.com/iudanet/recordsync/internal/client/iocli"
	"github.com/iudanet/recordsync/internal/client/record"
	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/client/storage/boltdb"
	"github.com/iudanet/recordsync/internal/client/storage/sealed"
	"github.com/iudanet/recordsync/internal/client/storage/sqlite"
	"github.com/iudanet/recordsync/internal/client/transport"
	"github.com/iudanet/recordsync/internal/config"
	"github.com/iudanet/recordsync/internal/timer"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// connectTimeout сколько команда ждёт первого подключения перед работой офлайн
const connectTimeout = 3 * time.Second

type closer interface {
	Close() error
}

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to YAML config")
	passphrase := flag.String("passphrase", "", "Storage passphrase (not recommended, use env var or file)")
	passphraseFile := flag.String("passphrase-file", "", "Path to file containing storage passphrase")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	stdio := iocli.NewStdio()

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		os.Exit(1)
	}

	passphrases := cli.Passphrases{FromFile: *passphraseFile, FromArgs: *passphrase}
	if err := run(stdio, *configPath, passphrases, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrUnknownCommand) || errors.Is(err, cli.ErrUsage) {
			cli.PrintUsage(stdio)
		}
		os.Exit(1)
	}
}

func run(stdio iocli.IO, configPath string, passphrases cli.Passphrases, command string, args []string) error {
	opts := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		opts = loaded
	}

	level, err := opts.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(ctx, stdio, opts.Storage, passphrases)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	loop := timer.NewLoop(logger)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() {
		_ = loop.Run(loopCtx)
	}()

	var (
		conn    *transport.Conn
		handler *record.Handler
		newErr  error
	)
	connected := make(chan struct{}, 1)
	err = loop.Do(ctx, func() {
		conn = transport.New(loop, transport.Options{
			URL:               opts.Transport.URL,
			ReconnectInterval: opts.Transport.ReconnectInterval,
			ReconnectBurst:    opts.Transport.ReconnectBurst,
			WriteTimeout:      opts.Transport.WriteTimeout,
		}, logger)

		handler, newErr = record.NewHandler(conn, loop, store, opts, logger)
		if newErr != nil {
			return
		}
		conn.SetHandler(handler.Handle)
		conn.OnReestablished(func() {
			select {
			case connected <- struct{}{}:
			default:
			}
		})
	})
	if err != nil {
		return err
	}
	if newErr != nil {
		return newErr
	}

	// ClientID известен только после создания Handler
	conn.SetClientID(handler.ClientID())

	connCtx, stopConn := context.WithCancel(context.Background())
	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		if err := conn.Run(connCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Connection stopped", "error", err)
		}
	}()
	defer func() {
		stopConn()
		<-connDone
	}()

	select {
	case <-connected:
	case <-time.After(connectTimeout):
		logger.Warn("Server is not reachable, working offline", "url", opts.Transport.URL)
	case <-ctx.Done():
		return ctx.Err()
	}

	app := cli.New(stdio, handler, loop.Do, commandTimeout(opts))
	runErr := app.Run(ctx, command, args)

	if err := app.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Error("Failed to flush offline storage", "error", err)
	}
	return runErr
}

// openStore открывает офлайн-хранилище выбранного драйвера,
// при включённом шифровании оборачивая его в sealed.Store
func openStore(ctx context.Context, stdio iocli.IO, cfg config.Storage, passphrases cli.Passphrases) (storage.RecordStore, closer, error) {
	var (
		store storage.RecordStore
		db    closer
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		store, db = s, s
	default:
		s, err := boltdb.New(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		store, db = s, s
	}

	if !cfg.Encrypt {
		return store, db, nil
	}

	passphrase, err := cli.GetPassphrase(stdio, passphrases)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	sealedStore, err := sealed.Open(ctx, store, passphrase)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return sealedStore, db, nil
}

// commandTimeout наибольший таймаут ответа сервера плюс секунда
func commandTimeout(opts config.Options) time.Duration {
	return max(opts.ReadTimeout, opts.SubscribeTimeout, opts.AckTimeout, opts.DeleteTimeout) + time.Second
}

func printVersion() {
	fmt.Printf("recordctl\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
