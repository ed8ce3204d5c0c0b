package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fkdmshk/agv-simulation/config"
	"github.com/fkdmshk/agv-simulation/factory"
	"github.com/fkdmshk/agv-simulation/logging"
	"github.com/fkdmshk/agv-simulation/observability"
	"github.com/fkdmshk/agv-simulation/simulation"
	"github.com/fkdmshk/agv-simulation/truck"
)

var (
	configPath      string
	shutdownTracing func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "agv-simulation",
	Short: "AGV and truck logistics simulator",
	Long: `agv-simulation drives an AGV around a factory floor and a truck between
two addresses, and shows both on a live web dashboard.

Tracing is configured from SIM_TRACING_* for every command; the stdout
exporter writes spans to stderr so run output stays one frame per line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := observability.TracingConfigFromEnv()
		cfg.Output = cmd.ErrOrStderr()
		shutdown, err := observability.InitTracing(cmd.Context(), cfg, cliLogger(cmd))
		if err != nil {
			return err
		}
		shutdownTracing = shutdown
		return nil
	},
}

// cliLogger logs to stderr, leaving stdout to command output.
func cliLogger(cmd *cobra.Command) logging.Logger {
	return logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Output: cmd.ErrOrStderr(),
	})
}

// serveCmd starts the dashboard server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		return serve(cmd.Context(), cfg, logging.NewFromEnv())
	},
}

// runCmd runs one scenario without the dashboard and prints its frames
var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run one scenario headless",
	Long: `run executes a single scenario and writes every frame to stdout as one
JSON document per line. Interrupt to stop the run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		refs, _ := flags.GetStringSlice("order")
		dwell, _ := flags.GetDuration("dwell")
		source, _ := flags.GetString("source")
		destination, _ := flags.GetString("destination")
		seed, _ := flags.GetUint64("seed")

		layout := factory.NewLayout(cfg.Layout)
		var order []int
		for _, ref := range refs {
			m, err := layout.Lookup(ref)
			if err != nil {
				return fmt.Errorf("--order: %w", err)
			}
			order = append(order, m.ID)
		}

		params := simulation.Params{
			Kind:        simulation.Kind(args[0]),
			Order:       order,
			Source:      source,
			Destination: destination,
		}
		if dwell > 0 {
			params.Dwell = make(map[int]time.Duration, len(cfg.Layout.Machines))
			for _, m := range cfg.Layout.Machines {
				params.Dwell[m.ID] = dwell
			}
		}
		if seed == 0 {
			seed = seedFromClock()
		}

		log := cliLogger(cmd)
		res, err := runHeadless(cmd.Context(), cfg, log, params, seed, json.NewEncoder(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		log.Info(cmd.Context(), "run finished",
			logging.String("run_id", res.RunID),
			logging.String("outcome", string(res.Outcome)),
			logging.Int("steps", res.Steps),
		)
		return nil
	},
}

// geocodeCmd resolves an address with the configured geocoder
var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Resolve an address to coordinates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		g := truck.NewGeocoder(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout)
		c, err := g.Geocode(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.6f,%.6f (%s, %s)\n", c.Lat, c.Lon,
			truck.DegreesToDMS(c.Lat, true), truck.DegreesToDMS(c.Lon, false))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file overlaid on the built-in configuration")

	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")

	runCmd.Flags().StringSlice("order", nil, "tour order as machine ids or names")
	runCmd.Flags().Duration("dwell", 0, "dwell time at every machine (1s to 10s)")
	runCmd.Flags().String("source", "", "truck source address")
	runCmd.Flags().String("destination", "", "truck destination address")
	runCmd.Flags().Uint64("seed", 0, "sensor random seed, clock based when 0")

	rootCmd.AddCommand(serveCmd, runCmd, geocodeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logging.NewFromEnv())
	if err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	a, err := newApp(cfg, log, prometheus.NewRegistry(), seedFromClock())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           logging.Middleware(log, a.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server started", logging.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		log.Info(ctx, "shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.close(shutdownCtx)
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn(shutdownCtx, "server shutdown failed", logging.Err(shutdownErr))
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runHeadless runs one scenario to completion and encodes every frame it
// emits.
func runHeadless(ctx context.Context, cfg *config.Config, log logging.Logger, params simulation.Params, seed uint64, enc *json.Encoder) (simulation.Result, error) {
	a, err := newApp(cfg, log, prometheus.NewRegistry(), seed)
	if err != nil {
		return simulation.Result{}, err
	}
	defer a.close(context.Background())

	a.runner.AddListener(func(f simulation.Frame) {
		if err := enc.Encode(f); err != nil {
			log.Warn(ctx, "failed to write frame", logging.Err(err))
		}
	})
	return a.runner.Run(ctx, params)
}
