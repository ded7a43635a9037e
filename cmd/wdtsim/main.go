// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// wdtsim runs a strict watchdog on the wall clock together with a caretaker
// that feeds it over the register interface, so the protocol and its reset
// paths can be observed live. Faults can be injected into the caretaker to
// exercise every violation class.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/spf13/afero"
	"github.com/u-root/strictwdt/config"
	"github.com/u-root/strictwdt/pkg/hardware/watchdog"
	"github.com/u-root/strictwdt/pkg/service/logger"
	"github.com/u-root/strictwdt/pkg/service/metric"
)

var log = logger.LogContainer.GetSimpleLogger()

var (
	periodMs    = flag.Uint64("period-ms", 1000, "Feeding period in milliseconds")
	earlyMs     = flag.Uint64("early-feed-ms", 1000, "How long before the deadline the feed window opens, in milliseconds")
	disableAuto = flag.Bool("disable-auto", false, "Do not reset on plain timeouts; violations still reset")
	fault       = flag.String("fault", "", "Inject a caretaker fault: starve, early, wrong-food or double-greet")
	runAuto     = flag.Bool("auto", false, "Run the autonomous debug watchdog instead of the strict one")
	listenAddr  = flag.String("listen", config.DefaultConfig.MetricsAddr, "Metrics listen address")
	stateFile   = flag.String("state", "", "Snapshot state to this file after every accepted feed")
)

func main() {
	flag.Parse()

	cfg := *config.DefaultConfig
	cfg.Watchdog.DisableAuto = *disableAuto
	cfg.Watchdog.FeedingPeriodNs = *periodMs * 1000 * 1000
	cfg.Watchdog.EarlyFeedLimitNs = *earlyMs * 1000 * 1000
	cfg.MetricsAddr = *listenAddr
	cfg.StateFile = *stateFile

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := watchdog.NewSystemScheduler(clock.New())

	// The "system reset": in a virtual machine this would pause or reboot
	// the guest. Here it is logged and handed to the caretaker so it can
	// simulate coming back from the reboot.
	resetCh := make(chan struct{}, 1)
	action := func() {
		log.Errorf("RESET ACTION: the watchdog decided the system is out of order.")
		select {
		case resetCh <- struct{}{}:
		default:
		}
	}

	if *runAuto {
		a := watchdog.NewAuto(cfg.Watchdog.FeedingPeriodNs, sched, action)
		defer a.Close()
		<-ctx.Done()
		return
	}

	w := watchdog.New(cfg.Watchdog, sched, action)
	defer w.Close()

	g, ctx := errgroup.WithContext(ctx)

	l, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		log.Fatalf("could not listen on %s: %v", cfg.MetricsAddr, err)
	}
	mux := http.NewServeMux()
	metric.StartMetrics(mux)
	srv := &http.Server{Handler: mux}
	g.Go(func() error {
		if err := srv.Serve(l); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	c := &caretaker{
		wd:        w,
		mm:        watchdog.NewMmio(w),
		sched:     sched,
		fault:     *fault,
		fs:        afero.NewOsFs(),
		statePath: cfg.StateFile,
		resetCh:   resetCh,
		reboot: &backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
	g.Go(func() error {
		return c.run(ctx)
	})

	log.Infof("wdtsim: period %dms, window %dms, fault %q, metrics on %s",
		*periodMs, *earlyMs, *fault, cfg.MetricsAddr)
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("wdtsim: %v", err)
	}
}
