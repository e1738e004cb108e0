package cli

import (
	"context"
)

func (c *Cli) runSnapshot(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, 1, "snapshot <name>"); err != nil {
		return err
	}

	var data any
	done := make(chan error, 1)
	err := c.request(ctx, done, func() error {
		return c.handler.Snapshot(args[0], func(err error, value any) {
			data = value
			notify(done, err)
		})
	})
	if err != nil {
		return err
	}
	return c.printJSON(data)
}

func (c *Cli) runHead(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, 1, "head <name>"); err != nil {
		return err
	}

	var version int64
	done := make(chan error, 1)
	err := c.request(ctx, done, func() error {
		return c.handler.Head(args[0], func(err error, v int64) {
			version = v
			notify(done, err)
		})
	})
	if err != nil {
		return err
	}

	c.io.Printf("%d\n", version)
	return nil
}

func (c *Cli) runHas(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, 1, "has <name>"); err != nil {
		return err
	}

	var exists bool
	done := make(chan error, 1)
	err := c.request(ctx, done, func() error {
		return c.handler.Has(args[0], func(err error, ok bool) {
			exists = ok
			notify(done, err)
		})
	})
	if err != nil {
		return err
	}

	c.io.Printf("%t\n", exists)
	return nil
}

// request запускает одиночный запрос в логическом потоке и ждёт ответа
func (c *Cli) request(ctx context.Context, done <-chan error, send func() error) error {
	var sendErr error
	if err := c.run(ctx, func() { sendErr = send() }); err != nil {
		return err
	}
	if sendErr != nil {
		return sendErr
	}
	return c.wait(ctx, done)
}

func (c *Cli) runList(ctx context.Context) error {
	var names []string
	done := make(chan error, 1)
	err := c.request(ctx, done, func() error {
		c.handler.StoredNames(func(got []string, err error) {
			names = got
			notify(done, err)
		})
		return nil
	})
	if err != nil {
		return err
	}

	for _, name := range names {
		c.io.Println(name)
	}
	return nil
}

func (c *Cli) runDirty(ctx context.Context) error {
	var names []string
	done := make(chan error, 1)
	err := c.request(ctx, done, func() error {
		c.handler.WhenLoaded(func() {
			names = c.handler.DirtyNames()
			notify(done, nil)
		})
		return nil
	})
	if err != nil {
		return err
	}

	if len(names) == 0 {
		c.io.Println("No unsent changes")
		return nil
	}
	for _, name := range names {
		c.io.Println(name)
	}
	return nil
}

func (c *Cli) runUID(ctx context.Context) error {
	var uid string
	if err := c.run(ctx, func() { uid = c.handler.GetUID() }); err != nil {
		return err
	}
	c.io.Println(uid)
	return nil
}
