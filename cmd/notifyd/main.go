package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GovTribe/notify/internal/app"
)

func main() {
	var (
		cfgPath string
		window  time.Duration
		daemon  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.DurationVar(&window, "window", 0, "activity poll window override (e.g. 120m)")
	flag.BoolVar(&daemon, "daemon", false, "run continuously instead of a single delivery pass")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.Options{Window: window})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if daemon {
		if err := a.Start(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "fatal start:", err)
			_ = a.Close()
			os.Exit(1)
		}
		<-ctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx)
		return
	}

	sent, err := a.RunOnce(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "delivery run failed:", err)
		_ = a.Close()
		os.Exit(1)
	}
	fmt.Printf("sent %d notification(s)\n", sent)
	_ = a.Close()
}
