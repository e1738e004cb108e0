package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/recordsync/internal/client/event"
	"github.com/iudanet/recordsync/internal/client/record"
)

// open открывает запись и ждёт её готовности
func (c *Cli) open(ctx context.Context, name string) (*record.Core, error) {
	var (
		core    *record.Core
		openErr error
	)
	done := make(chan error, 1)

	err := c.run(ctx, func() {
		core, openErr = c.handler.GetRecord(name, c)
		if openErr != nil {
			return
		}
		core.OnError(c, func(err error) { notify(done, err) })
		core.WhenReady(c, func() { notify(done, nil) })
	})
	if err != nil {
		return nil, err
	}
	if openErr != nil {
		return nil, openErr
	}

	if err := c.wait(ctx, done); err != nil {
		c.release(ctx, name)
		return nil, fmt.Errorf("failed to open record %q: %w", name, err)
	}
	return core, nil
}

func (c *Cli) release(ctx context.Context, name string) {
	_ = c.run(ctx, func() {
		_ = c.handler.Release(name, c)
	})
}

func (c *Cli) runGet(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, 2, "get <name> [path]"); err != nil {
		return err
	}
	name, path := args[0], ""
	if len(args) == 2 {
		path = args[1]
	}

	core, err := c.open(ctx, name)
	if err != nil {
		return err
	}
	defer c.release(ctx, name)

	var value any
	if err := c.run(ctx, func() { value = core.Get(path) }); err != nil {
		return err
	}
	return c.printJSON(value)
}

func (c *Cli) runSet(ctx context.Context, args []string) error {
	if err := requireArgs(args, 2, 3, "set <name> [path] <json>"); err != nil {
		return err
	}
	name, path, raw := args[0], "", args[1]
	if len(args) == 3 {
		path, raw = args[1], args[2]
	}
	value := parseValue(raw)

	return c.write(ctx, name, func(core *record.Core, cb func(error)) error {
		return core.Set(path, value, cb)
	})
}

func (c *Cli) runErase(ctx context.Context, args []string) error {
	if err := requireArgs(args, 2, 2, "erase <name> <path>"); err != nil {
		return err
	}
	name, path := args[0], args[1]

	return c.write(ctx, name, func(core *record.Core, cb func(error)) error {
		return core.Erase(path, cb)
	})
}

// write применяет изменение и ждёт подтверждения сервера.
// В офлайне изменение остаётся в хранилище и уйдёт после подключения.
func (c *Cli) write(ctx context.Context, name string, apply func(core *record.Core, cb func(error)) error) error {
	core, err := c.open(ctx, name)
	if err != nil {
		return err
	}
	defer c.release(ctx, name)

	done := make(chan error, 1)
	var applyErr error
	if err := c.run(ctx, func() {
		applyErr = apply(core, func(err error) { notify(done, err) })
	}); err != nil {
		return err
	}
	if applyErr != nil {
		return applyErr
	}

	err = c.wait(ctx, done)
	switch {
	case errors.Is(err, event.ErrClientOffline):
		c.io.Println("Saved offline, will be sent after reconnect")
		return nil
	case err != nil:
		return fmt.Errorf("write to %q failed: %w", name, err)
	}

	c.io.Println("OK")
	return nil
}

func (c *Cli) runDelete(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, 1, "delete <name>"); err != nil {
		return err
	}
	name := args[0]

	core, err := c.open(ctx, name)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	var deleteErr error
	if err := c.run(ctx, func() {
		deleteErr = core.Delete(func(err error) { notify(done, err) })
	}); err != nil {
		return err
	}
	if deleteErr != nil {
		return deleteErr
	}

	if err := c.wait(ctx, done); err != nil {
		c.release(ctx, name)
		return fmt.Errorf("delete %q failed: %w", name, err)
	}

	c.io.Printf("Record %s deleted\n", name)
	return nil
}
