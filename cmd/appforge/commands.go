package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"appforge/internal/broker"
	"appforge/internal/bundle"
	"appforge/internal/config"
	"appforge/internal/jobs"
	"appforge/internal/logging"
	"appforge/internal/pipeline"
	"appforge/internal/server"
	"appforge/internal/store"

	"github.com/spf13/cobra"
)

// app wires the long-lived pieces a command needs.
type app struct {
	cfg      *config.Config
	broker   *broker.Broker
	mat      *bundle.Materializer
	registry *server.Registry
	pipe     *pipeline.Pipeline
	runner   *jobs.Runner
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	st := store.Open(dir)
	br := broker.New(st, cfg.Demo.BaseURL, cfg.Demo.DailyLimit)
	mat, err := bundle.New(bundle.Config{
		Root:            cfg.Bundles.Dir,
		SharedAssetsDir: cfg.Bundles.SharedAssetsDir,
		AssetPatterns:   cfg.Bundles.AssetPatterns,
		ChunkSize:       cfg.Bundles.ChunkSize,
		ChunkPause:      cfg.Bundles.ChunkPause,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		broker:   br,
		mat:      mat,
		registry: server.NewRegistry(cfg.Server.BasePort, cfg.Server.PortRange),
		runner:   jobs.NewRunner(),
	}
	a.pipe = pipeline.New(cfg, br, mat, pipeline.WithObserver(reportPhase))
	return a, nil
}

// reportPhase prints pipeline progress as it happens.
func reportPhase(s pipeline.State) {
	switch s {
	case pipeline.StateAcquiringCredential:
		fmt.Println("Acquiring credential...")
	case pipeline.StateCalling:
		fmt.Println("Generating app...")
	case pipeline.StateParsing:
		fmt.Println("Reading response...")
	case pipeline.StateMaterializing:
		fmt.Println("Writing bundle...")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newGenerateCmd() *cobra.Command {
	var name string
	var serve bool

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a new app from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer logging.Close()

			ctx, cancel := signalContext()
			defer cancel()

			prompt := strings.Join(args, " ")
			if name == "" {
				name = deriveName(prompt)
			}

			job := a.runner.Submit(ctx, prompt, func(ctx context.Context) (*pipeline.Result, error) {
				return a.pipe.Generate(ctx, name, prompt)
			})
			if err := job.Wait(ctx); err != nil {
				return err
			}
			result, err := job.Result()
			if err != nil {
				return err
			}

			fmt.Printf("Created %q (bundle %s)\n", result.Info.Name, result.Info.ID)
			if result.UsedDemoKey {
				printQuotaRemaining(a.broker)
			}
			if !serve {
				fmt.Printf("Run: appforge serve %s\n", result.Info.ID)
				return nil
			}
			return serveBundle(ctx, a, result.Info.ID, false)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "app name (default: derived from the prompt)")
	cmd.Flags().BoolVar(&serve, "serve", false, "serve the app after generating")
	return cmd
}

func newReworkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rework <bundle-id> <prompt>",
		Short: "Modify an existing app",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer logging.Close()

			ctx, cancel := signalContext()
			defer cancel()

			bundleID := args[0]
			prompt := strings.Join(args[1:], " ")

			result, err := a.pipe.Rework(ctx, bundleID, prompt)
			if err != nil {
				return err
			}
			fmt.Println(result.Report.Summary())
			if result.UsedDemoKey {
				printQuotaRemaining(a.broker)
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve <bundle-id>",
		Short: "Serve a generated app locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer logging.Close()

			ctx, cancel := signalContext()
			defer cancel()
			return serveBundle(ctx, a, args[0], watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh clients when bundle files change")
	return cmd
}

// serveBundle starts the server for a bundle and blocks until the
// context is canceled.
func serveBundle(ctx context.Context, a *app, bundleID string, watch bool) error {
	if _, err := a.mat.ReadInfo(bundleID); err != nil {
		return fmt.Errorf("unknown bundle %s: %w", bundleID, err)
	}
	inst, err := a.registry.Start(bundleID, a.mat.Dir(bundleID))
	if err != nil {
		return err
	}
	defer a.registry.StopAll()

	if watch {
		watcher, err := server.NewWatcher(inst.Dir, bundle.BumpServiceWorker)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	fmt.Printf("Serving at %s (Ctrl-C to stop)\n", inst.URL())
	<-ctx.Done()
	fmt.Println("\nStopping...")
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List generated apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			infos, err := a.mat.List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No apps yet. Try: appforge generate \"a pomodoro timer\"")
				return nil
			}
			for _, info := range infos {
				port := server.PortFor(info.ID, a.cfg.Server.BasePort, a.cfg.Server.PortRange)
				fmt.Printf("%s  %-30s  http://127.0.0.1:%d/\n", info.ID, info.Name, port)
			}
			return nil
		},
	}
}

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show remaining demo usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			status, err := a.broker.Quota()
			if err != nil {
				return err
			}
			fmt.Printf("Demo usage: %s\n", status)
			if status.Used > 0 {
				fmt.Printf("Window resets at %s\n", status.ResetsAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newDeviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Manage the anonymous device identity",
	}
	deviceCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the device identity and cached demo credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.broker.ClearDeviceID(); err != nil {
				return err
			}
			fmt.Println("Device identity cleared. A new one is created on the next demo run.")
			return nil
		},
	})
	return deviceCmd
}

func printQuotaRemaining(br *broker.Broker) {
	status, err := br.Quota()
	if err != nil {
		return
	}
	fmt.Printf("Demo usage: %s today\n", status)
}

// deriveName builds a short app name from the first words of a prompt.
func deriveName(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 5 {
		words = words[:5]
	}
	name := strings.Join(words, " ")
	if name == "" {
		return "Untitled App"
	}
	if runes := []rune(name); len(runes) > 48 {
		name = string(runes[:48])
	}
	return name
}
