package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebridge/intake/internal/sim"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// CLI flags
	var (
		controlPort = flag.String("control-port", "8081", "Control API port")
		serverURL   = flag.String("server-url", "ws://localhost:8080/ws/visitor", "Intake server websocket URL")
		autoStart   = flag.Bool("auto-start", false, "Automatically start simulation")
		concurrency = flag.Int("visitors", 10, "Number of concurrent visitors (if auto-start is true)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "visitorsim").
		Logger()

	logger.Info().Msg("starting VisitorSim service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	simulator := sim.NewSimulator(*serverURL, logger)
	controlAPI := sim.NewControlAPI(simulator, logger)

	// Start control API
	go func() {
		addr := fmt.Sprintf(":%s", *controlPort)
		if err := controlAPI.Start(ctx, addr); err != nil {
			logger.Error().Err(err).Msg("control API stopped")
		}
	}()

	// Auto-start if requested
	if *autoStart {
		logger.Info().Int("visitors", *concurrency).Msg("auto-starting simulation")
		if err := simulator.Start(*concurrency); err != nil {
			logger.Error().Err(err).Msg("failed to auto-start simulation")
		}
	}

	logger.Info().
		Str("control_api", fmt.Sprintf("http://localhost:%s", *controlPort)).
		Str("server_url", *serverURL).
		Msg("VisitorSim ready")

	printUsage(*controlPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down VisitorSim")
	if simulator.Running() {
		simulator.Stop()
	}
	cancel()
	time.Sleep(1 * time.Second)
}

func printUsage(port string) {
	fmt.Println()
	fmt.Println("VisitorSim Control API:")
	fmt.Printf("  GET  http://localhost:%s/health  - Health check\n", port)
	fmt.Printf("  GET  http://localhost:%s/status  - Simulation status\n", port)
	fmt.Printf("  POST http://localhost:%s/start   - Start simulation\n", port)
	fmt.Printf("  POST http://localhost:%s/stop    - Stop simulation\n", port)
	fmt.Printf("  POST http://localhost:%s/scale   - Adjust concurrency\n", port)
	fmt.Printf("  GET  http://localhost:%s/stats   - Get statistics\n", port)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  curl -X POST http://localhost:%s/start -d '{\"concurrency\":25}'\n", port)
	fmt.Printf("  curl http://localhost:%s/stats\n", port)
	fmt.Println()
}
