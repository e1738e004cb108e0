package cli

import (
	"context"
	"encoding/json"

	"github.com/iudanet/recordsync/internal/client/record"
)

// runWatch печатает значение при каждом изменении до отмены ctx
func (c *Cli) runWatch(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, 2, "watch <name> [path]"); err != nil {
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
	defer c.release(context.WithoutCancel(ctx), name)

	var subErr error
	if err := c.run(ctx, func() {
		_, subErr = core.Subscribe(path, c.printChange, true, c)
		core.OnDeleted(c, func() { c.io.Println("Record deleted") })
	}); err != nil {
		return err
	}
	if subErr != nil {
		return subErr
	}

	<-ctx.Done()
	return nil
}

func (c *Cli) printChange(value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.io.Printf("<unprintable: %v>\n", err)
		return
	}
	c.io.Println(string(data))
}

// runListen принимает роль провайдера для каждой найденной подписки
func (c *Cli) runListen(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, 1, "listen <pattern>"); err != nil {
		return err
	}
	pattern := args[0]

	var listenErr error
	if err := c.run(ctx, func() {
		listenErr = c.handler.Listen(pattern, func(match string, isSubscribed bool, response *record.ListenResponse) {
			if !isSubscribed {
				c.io.Printf("- %s\n", match)
				return
			}
			c.io.Printf("+ %s\n", match)
			response.Accept()
		})
	}); err != nil {
		return err
	}
	if listenErr != nil {
		return listenErr
	}

	<-ctx.Done()
	return c.run(context.WithoutCancel(ctx), func() {
		_ = c.handler.Unlisten(pattern)
	})
}
