package cli

import (
	"context"
	"fmt"
)

// Run выполняет команду с аргументами
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "get":
		return c.runGet(ctx, args)
	case "set":
		return c.runSet(ctx, args)
	case "erase":
		return c.runErase(ctx, args)
	case "delete":
		return c.runDelete(ctx, args)
	case "snapshot":
		return c.runSnapshot(ctx, args)
	case "head":
		return c.runHead(ctx, args)
	case "has":
		return c.runHas(ctx, args)
	case "watch":
		return c.runWatch(ctx, args)
	case "listen":
		return c.runListen(ctx, args)
	case "list":
		return c.runList(ctx)
	case "dirty":
		return c.runDirty(ctx)
	case "uid":
		return c.runUID(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func requireArgs(args []string, minArgs, maxArgs int, usage string) error {
	if len(args) < minArgs || len(args) > maxArgs {
		return fmt.Errorf("%w: recordctl %s", ErrUsage, usage)
	}
	return nil
}
