// Package cli реализует команды recordctl поверх record.Handler.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iudanet/recordsync/internal/client/iocli"
	"github.com/iudanet/recordsync/internal/client/record"
)

// PassphraseEnv переменная окружения с паролем шифрования офлайн-хранилища
const PassphraseEnv = "RECORDSYNC_PASSPHRASE"

var (
	// ErrUsage неверные аргументы команды
	ErrUsage = errors.New("usage error")

	// ErrUnknownCommand команда не поддерживается
	ErrUnknownCommand = errors.New("unknown command")

	// ErrTimeout операция не завершилась за отведённое время
	ErrTimeout = errors.New("operation timed out")
)

// Runner выполняет fn в логическом потоке клиента и ждёт завершения
type Runner func(ctx context.Context, fn func()) error

// Passphrases источники пароля шифрования
type Passphrases struct {
	FromFile string
	FromArgs string
}

// Cli команды клиента
type Cli struct {
	io      iocli.IO
	handler *record.Handler
	run     Runner
	timeout time.Duration
}

// New создает Cli. timeout ограничивает ожидание ответа на каждую операцию.
func New(io iocli.IO, handler *record.Handler, run Runner, timeout time.Duration) *Cli {
	return &Cli{
		io:      io,
		handler: handler,
		run:     run,
		timeout: timeout,
	}
}

// GetPassphrase retrieves storage passphrase from various sources with priority:
// 1. Environment variable RECORDSYNC_PASSPHRASE
// 2. File specified in FromFile
// 3. Command-line parameter FromArgs
// 4. Interactive prompt (fallback)
func GetPassphrase(io iocli.IO, passphrases Passphrases) (string, error) {
	if env := os.Getenv(PassphraseEnv); env != "" {
		return env, nil
	}

	if passphrases.FromFile != "" {
		content, err := os.ReadFile(passphrases.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		// Убираем trailing newline/whitespace
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", fmt.Errorf("passphrase file is empty")
		}
		return passphrase, nil
	}

	if passphrases.FromArgs != "" {
		return passphrases.FromArgs, nil
	}

	passphrase, err := io.ReadPassword("Storage passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return "", fmt.Errorf("passphrase cannot be empty")
	}
	return passphrase, nil
}

// PrintUsage выводит справку
func PrintUsage(io iocli.IO) {
	io.Println("recordctl - realtime record sync client")
	io.Println()
	io.Println("Usage:")
	io.Println("  recordctl [OPTIONS] COMMAND [ARGS]")
	io.Println()
	io.Println("Options:")
	io.Println("  --version                  Show version information")
	io.Println("  --config PATH              Path to YAML config")
	io.Println("  --passphrase PASSPHRASE    Storage passphrase (not recommended, use env var or file)")
	io.Println("  --passphrase-file PATH     Path to file containing storage passphrase")
	io.Println()
	io.Println("Commands:")
	io.Println("  get <name> [path]          Print record data once it is ready")
	io.Println("  set <name> [path] <json>   Write a value; without path the value replaces the record")
	io.Println("  erase <name> <path>        Remove a value from the record")
	io.Println("  delete <name>              Delete the record on the server")
	io.Println("  snapshot <name>            Read record data without subscribing")
	io.Println("  head <name>                Print server version of the record")
	io.Println("  has <name>                 Check whether the record exists")
	io.Println("  watch <name> [path]        Print every change until interrupted")
	io.Println("  listen <pattern>           Accept subscriptions for matching records until interrupted")
	io.Println("  list                       List records stored offline")
	io.Println("  dirty                      List records with changes not yet sent")
	io.Println("  uid                        Generate a unique record name")
	io.Println()
	io.Println("Examples:")
	io.Println("  recordctl set users/1 name '\"Alice\"'")
	io.Println("  recordctl get users/1 name")
	io.Println("  RECORDSYNC_PASSPHRASE=... recordctl --config recordsync.yaml watch users/1")
}

// Close сохраняет индекс dirty и ждёт завершения операций офлайн-хранилища
func (c *Cli) Close(ctx context.Context) error {
	done := make(chan error, 1)
	if err := c.run(ctx, func() {
		c.handler.Flush(func() { notify(done, nil) })
	}); err != nil {
		return err
	}
	return c.wait(ctx, done)
}

// wait ждёт результата операции, отмены ctx или таймаута
func (c *Cli) wait(ctx context.Context, done <-chan error) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
}

// notify отправляет результат, не блокируя логический поток
func notify(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func (c *Cli) printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	_, err = c.io.Write(append(data, '\n'))
	return err
}

// parseValue разбирает аргумент как JSON; невалидный JSON считается строкой
func parseValue(arg string) any {
	var value any
	if err := json.Unmarshal([]byte(arg), &value); err != nil {
		return arg
	}
	return value
}
