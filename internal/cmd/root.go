// Package cmd implements the divinepic CLI commands using Cobra.
// It provides the trigger server plus one-shot lifecycle commands for
// starting, stopping, and dispatching work to the inference instance.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/activity"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/config"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/idle"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/journal"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/lifecycle"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/probe"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

// verbosity is bound to the persistent -v flag.
var verbosity int

// appConfig holds the loaded application configuration.
var appConfig *config.Config

// configLoader is used for config get/set access.
var configLoader *config.Loader

var rootCmd = &cobra.Command{
	Use:   "divinepic",
	Short: "Manage the DivinePic inference instance lifecycle",
	Long: `divinepic starts and stops the EC2 instance hosting the DivinePic
inference service, waits for the service to come up, relays processing
requests to it, and shuts the instance down once it has sat idle for the
configured window.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctx := slogger.WithLogger(cmd.Context(), slogger.New(slogger.Config{Verbosity: verbosity}))

		// Store dependencies in context for subcommands
		ctx = WithConfig(ctx, appConfig)
		ctx = WithLoader(ctx, configLoader)

		// Commands that need the controller report its absence themselves;
		// config and journal still work with a partial configuration.
		if appConfig != nil && appConfig.Instance.ID != "" {
			ctrl, err := buildController(ctx, appConfig)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: lifecycle controller unavailable: %v\n", err)
			} else {
				ctx = WithController(ctx, ctrl)
			}
		}

		cmd.SetContext(ctx)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity")
}

func initConfig() {
	loader, err := config.NewLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
		return
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		return
	}

	appConfig = cfg
	configLoader = loader
}

// buildController wires the lifecycle controller from configuration: the EC2
// handle, the readiness prober, the processing relay, the journal, and the
// idle-loop factory.
func buildController(ctx context.Context, cfg *config.Config) (*lifecycle.Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := compute.NewEC2Client(ctx, cfg.Instance.Region)
	if err != nil {
		return nil, fmt.Errorf("create EC2 client: %w", err)
	}

	handle := compute.NewEC2Handle(client, compute.EC2Config{
		InstanceID:  cfg.Instance.ID,
		Environment: cfg.Environment(),
		DeviceClass: cfg.DeviceClass(),
	})

	prober := probe.New(probeConfig(cfg))

	relay := lifecycle.NewRelay(lifecycle.RelayConfig{
		Port:        cfg.Service.Port,
		ProcessPath: cfg.Service.ProcessPath,
		Timeout:     cfg.Relay.Timeout,
		Environment: cfg.Environment(),
		DeviceClass: cfg.DeviceClass(),
	})

	rec := journal.NewStore(cfg.Journal.Path)

	newLoop := func(addr string) lifecycle.Loop {
		base := fmt.Sprintf("http://%s:%d", addr, cfg.Service.Port)
		sources := []activity.Source{
			activity.NewFileWriteSource(base, cfg.Idle.Lookback),
		}
		if cfg.DeviceClass() == compute.DeviceGPU {
			sources = append(sources, activity.NewGPUUtilizationSource(base, cfg.Idle.GPUFloorPercent))
		}
		return idle.NewLoop(handle, activity.NewMonitor(sources...), rec, idle.Config{
			Threshold: cfg.Idle.Threshold,
			Interval:  cfg.Idle.SampleInterval,
		})
	}

	ctrl := lifecycle.NewController(handle, prober, relay, rec, newLoop, lifecycle.Config{
		InstanceID: cfg.Instance.ID,
	})

	return ctrl, nil
}

// probeConfig starts from the device-class defaults and applies any explicit
// overrides from the configuration file.
func probeConfig(cfg *config.Config) probe.Config {
	pc := probe.DefaultConfig(cfg.DeviceClass())
	pc.Port = cfg.Service.Port
	pc.HealthPath = cfg.Service.HealthPath
	if cfg.Probe.Warmup > 0 {
		pc.WarmupDelay = cfg.Probe.Warmup
	}
	if cfg.Probe.Interval > 0 {
		pc.Interval = cfg.Probe.Interval
	}
	if cfg.Probe.Attempts > 0 {
		pc.Attempts = cfg.Probe.Attempts
	}
	if cfg.Probe.AttemptTimeout > 0 {
		pc.AttemptTimeout = cfg.Probe.AttemptTimeout
	}
	return pc
}
