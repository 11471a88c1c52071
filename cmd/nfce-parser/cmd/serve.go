package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-parser/internal/server"
)

var (
	serverAddr     string
	serverDebug    bool
	readTimeout    time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration
	maxBodySize    int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for parsing NFC-e pages.

The API provides endpoints for:
  - POST /api/v1/nfce/parse       - Parse {"html": ...} or {"url": ...}
  - POST /api/v1/nfce/parse/html  - Parse a raw HTML body
  - POST /api/v1/nfce/validate    - Parse and report consistency
  - GET  /api/v1/nfce/proxy?url=  - Fetch a portal page as is
  - GET  /api/v1/layouts          - List registered layouts
  - GET  /health                  - Health check

Examples:
  # Start server on default port
  nfce-parser serve

  # Start on custom port with extra layouts
  nfce-parser serve --address :9090 --layouts layouts.yaml

  # Start in debug mode with JSON logs
  nfce-parser serve --debug --log-format json --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", ":8080", "Server listen address")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", time.Minute, "HTTP write timeout")
	serveCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 30*time.Second, "Processing timeout per request")
	serveCmd.Flags().Int64Var(&maxBodySize, "max-body-size", server.DefaultMaxBodySize, "Maximum request body size in bytes")
}

func runServe(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("log-level") && os.Getenv("NFCE_LOG_LEVEL") == "" {
		logLevel = "info"
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(log)
	if err != nil {
		return err
	}

	config := &server.Config{
		Address:        serverAddr,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		RequestTimeout: requestTimeout,
		MaxBodySize:    maxBodySize,
		Debug:          serverDebug,
	}

	srv := server.NewServer(config, server.WithPipeline(pipeline), server.WithLogger(log))

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s\n", serverAddr)
	log.Info("server starting",
		"address", serverAddr,
		"layouts", len(pipeline.Parser().Registry().Layouts()),
		"tolerance", pipeline.Parser().Tolerance().String(),
	)

	return srv.Run()
}
