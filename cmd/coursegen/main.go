package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		return cli.ExitRuntimeError
	}

	code := cli.Execute(ctx, os.Args[1:], a, os.Stdin, os.Stdout, os.Stderr)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := a.Close(closeCtx); cerr != nil {
		a.Log.Warn("shutdown", "error", cerr)
	}
	return code
}
