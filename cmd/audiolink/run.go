package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/audiolink"
	"github.com/opd-ai/audiolink/config"
	"github.com/opd-ai/audiolink/monitor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the receiver",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReceiver()
	},
}

func runReceiver() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Apply()
	cfg.Validate()

	recv, err := audiolink.New(cfg.Receiver())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logrus.WithFields(logrus.Fields{
			"signal": sig.String(),
		}).Info("received signal, shutting down")
		cancel()
	}()

	if err := recv.Start(ctx); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"version": version,
		"listen":  cfg.Listen.Addr,
		"codec":   cfg.Audio.Codec,
	}).Info("audiolink running")

	mon := monitor.New(cfg.MonitorServer(), recv.Stats)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return recv.Stop()
	})

	return g.Wait()
}
