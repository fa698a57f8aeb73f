package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/bilal/g55-agent/internal/communicator"
	"github.com/bilal/g55-agent/internal/config"
	"github.com/bilal/g55-agent/internal/health"
	"github.com/bilal/g55-agent/internal/logger"
	"github.com/bilal/g55-agent/internal/monitor"
	"github.com/bilal/g55-agent/internal/onu"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start polling the ONU",
	Long: `Start the poll loop. The agent runs until SIGINT/SIGTERM, or exits with
status 1 when the ONU rejects a fresh login.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Logging)
	log.Info().Str("version", version).Str("onu", cfg.ONU.IP).Str("broker", cfg.BrokerURL()).Msg("starting g55 agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []monitor.Option

	var healthSrv *health.Server
	if cfg.Health.Port != "" {
		healthSrv = health.New(cfg.Health.Port)
		healthSrv.SetRunning(true)
		go func() {
			if err := healthSrv.Serve(); err != nil {
				log.Error().Err(err).Msg("health server stopped")
			}
		}()
		log.Info().Str("port", cfg.Health.Port).Msg("health endpoint running on 127.0.0.1/health")
		opts = append(opts, monitor.WithReporter(healthSrv))
	}

	// the broker connection outlives ctx so "offline" can be sent on shutdown
	commCtx, commCancel := context.WithCancel(context.Background())
	defer commCancel()
	comm := communicator.New(cfg)
	if err := comm.Start(commCtx); err != nil {
		return err
	}

	router, err := onu.NewClient(cfg.ONU.IP, onu.Credentials{
		Username: cfg.ONU.Username,
		Password: cfg.ONU.Password,
	}, time.Duration(cfg.ONU.TimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}
	defer router.Close()

	var producer *communicator.KafkaProducer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = communicator.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		opts = append(opts, monitor.WithSink(producer))
	}

	if cfg.ONU.Ping {
		opts = append(opts, monitor.WithProber(monitor.NewPingMonitor(cfg.ONU.IP, cfg.ONU.PingPrivileged)))
	}

	mon, err := monitor.New(cfg, router, comm, opts...)
	if err != nil {
		return err
	}

	runErr := mon.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("stopping communicator...")
	comm.Shutdown(shutdownCtx)

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warn().Err(err).Msg("kafka producer close failed")
		}
	}
	if healthSrv != nil {
		healthSrv.SetRunning(false)
	}

	switch {
	case errors.Is(runErr, monitor.ErrFatal):
		log.Error().Err(runErr).Msg("agent stopped")
		return runErr
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return runErr
	}

	log.Info().Msg("agent stopped cleanly")
	return nil
}
