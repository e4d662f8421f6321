// daybreakd is the bridge daemon entry point: a long-lived local
// process that multiplexes CLI/TUI clients over a rendezvous socket
// against a single framed-protobuf session to a remote robot.
//
// Grounded on the teacher's root main.go (context-cancel shutdown,
// per-component goroutines, 60-second graceful-shutdown timeout,
// SIGINT/SIGTERM handling, startup IP listing), generalized from a
// sync.WaitGroup-per-component fan-out to golang.org/x/sync/errgroup
// per SPEC_FULL.md §5, and from the teacher's bare os.Getenv flag
// reading to github.com/spf13/pflag for the daemon's own CLI flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Nat3z/Daybreak/internal/config"
	"github.com/Nat3z/Daybreak/internal/eventbus"
	"github.com/Nat3z/Daybreak/internal/logging"
	"github.com/Nat3z/Daybreak/internal/metrics"
	"github.com/Nat3z/Daybreak/internal/netutil"
	"github.com/Nat3z/Daybreak/internal/router"
	"github.com/Nat3z/Daybreak/internal/status"
)

const shutdownTimeout = 60 * time.Second

func main() {
	force := pflag.Bool("force", false, "remove a pre-existing rendezvous socket instead of refusing to start")
	debug := pflag.Bool("debug", false, "enable verbose debug logging")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "daybreakd: loading config: %v\n", err)
		os.Exit(1)
	}
	if *force {
		cfg.Force = true
	}
	if *debug {
		cfg.DebugMode = true
	}
	logging.DEBUG_MODE = cfg.DebugMode

	logging.DebugPrint("daybreakd starting; reachable on:")
	for _, ip := range netutil.GetLocalIPs() {
		logging.DebugPrint("  %s", ip)
	}

	m := metrics.New()
	bus := eventbus.New()

	rt, err := router.New(cfg, m, bus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daybreakd: %v\n", err)
		os.Exit(1)
	}

	statusSrv := status.New(cfg.StatusAddr, rt, m, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.Serve()
	})

	g.Go(func() error {
		if err := statusSrv.Run(gCtx); err != nil {
			// §4.9: bind failure on the diagnostics surface is logged and
			// non-fatal; the rendezvous sockets remain authoritative.
			logging.DebugError(fmt.Errorf("status surface: %w", err))
		}
		return nil
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-gCtx.Done():
		logging.DebugPrint("a component failed, shutting down")
	case <-sigs:
		logging.DebugPrint("received termination signal, shutting down")
	}

	cancel()
	rt.Close()

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.DebugPrint("daybreakd shut down gracefully")
	case <-time.After(shutdownTimeout):
		logging.DebugPrint("shutdown timed out, forcing exit")
	}
}
