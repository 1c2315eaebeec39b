package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/exitprobe/internal/config"
	"github.com/nao1215/exitprobe/internal/database"
	"github.com/nao1215/exitprobe/internal/log"
	"github.com/nao1215/exitprobe/internal/model"
	"github.com/nao1215/exitprobe/internal/probe"
	"github.com/nao1215/exitprobe/internal/report"
	"github.com/nao1215/exitprobe/internal/tor"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run probe commands over Tor circuits and collect correlation events",
		Long: `Run executes commands through the torsocks wrapper and records, for each
circuit, the source ports of the connections the command opened. The
wrapper's verbose connection disclosures on the merged output stream are
parsed into (circuit, source port) correlation events.

Examples:
  # Probe one circuit with a single command
  exitprobe run --circuit guard-exit-1 -- curl -s https://check.torproject.org/

  # Probe many circuits from a YAML file, four at a time
  exitprobe run --circuits circuits.yaml --batch 4

  # Route through a non-default SOCKS listener
  exitprobe run --proxy 127.0.0.1:9150 --circuit c1 -- dig +short example.com

  # Launch an embedded Tor daemon instead of using an external one
  exitprobe run --embedded-tor --circuit c1 -- curl -s https://example.com/

Circuits file (YAML) example:
  default_command: ["curl", "-s", "https://check.torproject.org/"]
  circuits:
    - id: guard-exit-1
      socks: 127.0.0.1:9050
    - id: guard-exit-2
      socks: 127.0.0.1:9052
      command: ["dig", "+short", "example.com"]`,
		Args: cobra.ArbitraryArgs,
		RunE: runRunCmd,
	}

	// Tor connection flags
	cmd.Flags().StringP("proxy", "p", config.DefaultProxyAddress,
		"External Tor SOCKS proxy address")
	cmd.Flags().Bool("embedded-tor", false,
		"Launch an embedded Tor daemon instead of using an external proxy")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Probe behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Wall-clock budget per probe command")
	cmd.Flags().StringP("circuit", "C", "",
		"Circuit ID for a single-command invocation")
	cmd.Flags().StringP("circuits", "f", "",
		"YAML file describing per-circuit probes for batch mode")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent probe commands in batch mode")
	cmd.Flags().StringP("wrapper", "w", "",
		"Path to the torsocks executable (default: resolve via PATH)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Persistence flags
	cmd.Flags().Bool("no-db", false,
		"Do not record runs in the local database")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging
	cfg.Verbose = getVerboseFlag(cmd)
	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runProbes(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.ProxyAddress, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.UseEmbeddedTor, err = cmd.Flags().GetBool("embedded-tor")
	if err != nil {
		return nil, err
	}

	cfg.TorStartupTimeout, err = cmd.Flags().GetDuration("tor-timeout")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.CircuitID, err = cmd.Flags().GetString("circuit")
	if err != nil {
		return nil, err
	}

	cfg.CircuitsFile, err = cmd.Flags().GetString("circuits")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.WrapperPath, err = cmd.Flags().GetString("wrapper")
	if err != nil {
		return nil, err
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.SaveToDB {
		cfg.DBDir = config.XDGDataDir()
	}

	// Positional arguments are the probe command for single-command mode.
	cfg.Command = args

	if cfg.CircuitsFile != "" {
		cfg.Circuits, err = config.LoadCircuitsFile(cfg.CircuitsFile)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// setupLogger creates a structured logger based on verbosity setting.
// Every record passes through the redacting handler so isolation
// credentials never reach the log output.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(log.NewRedactHandler(handler))
}

// runProbes resolves the SOCKS endpoint, builds the target list, and
// executes the probe session.
func runProbes(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Open database connection if saving is enabled
	var db *database.ProbeDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	defaultProxy, stop, err := resolveProxy(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stop()

	targets, err := buildTargets(cfg, defaultProxy)
	if err != nil {
		return err
	}

	fmt.Printf("Probing %d circuit(s) through %s...\n", len(targets), defaultProxy.Addr())

	session := probe.NewSession(
		probe.WithTimeout(cfg.Timeout),
		probe.WithConcurrency(cfg.BatchSize),
		probe.WithDatabase(db),
		probe.WithLogger(logger),
		probe.WithWrapperPath(cfg.WrapperPath),
	)

	probeReport, err := session.Run(ctx, targets)
	if err != nil {
		return fmt.Errorf("probe session failed: %w", err)
	}

	return outputReport(cfg, probeReport)
}

// resolveProxy returns the SOCKS endpoint probes route through by
// default, either the configured external proxy or a freshly launched
// embedded daemon. The returned stop function shuts the daemon down and
// is a no-op for an external proxy.
func resolveProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tor.Endpoint, func(), error) {
	if !cfg.UseEmbeddedTor {
		endpoint, err := tor.ParseEndpoint(cfg.ProxyAddress)
		if err != nil {
			return tor.Endpoint{}, nil, fmt.Errorf("invalid proxy address %q: %w", cfg.ProxyAddress, err)
		}

		client, err := tor.NewClient(endpoint)
		if err != nil {
			return tor.Endpoint{}, nil, err
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return tor.Endpoint{}, nil, fmt.Errorf("proxy check failed for %s: %w (make sure Tor is running)",
				endpoint.Addr(), status.Err())
		}

		logger.Info("Tor proxy connection verified", "address", endpoint.Addr())
		return endpoint, func() {}, nil
	}

	fmt.Println("Starting embedded Tor daemon...")
	fmt.Printf("This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return tor.Endpoint{}, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	endpoint, err := embedded.Endpoint()
	if err != nil {
		_ = embedded.Stop()
		return tor.Endpoint{}, nil, err
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embedded.SocksAddr())
	fmt.Printf("Embedded Tor daemon started successfully!\nSOCKS proxy: %s\n\n", embedded.SocksAddr())

	stop := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embedded.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
	return endpoint, stop, nil
}

// buildTargets expands the configuration into the probe target list.
// Single-command mode yields one target on the default proxy; a circuits
// file yields one target per entry, each on its own SOCKS listener.
func buildTargets(cfg *config.Config, defaultProxy tor.Endpoint) ([]probe.Target, error) {
	if cfg.Circuits == nil {
		return []probe.Target{{
			CircuitID: cfg.CircuitID,
			Proxy:     defaultProxy,
			Command:   cfg.Command,
		}}, nil
	}

	targets := make([]probe.Target, 0, len(cfg.Circuits.Circuits))
	for _, c := range cfg.Circuits.Circuits {
		endpoint, err := tor.ParseEndpoint(c.Socks)
		if err != nil {
			return nil, fmt.Errorf("circuit %q: invalid socks address %q: %w", c.ID, c.Socks, err)
		}
		targets = append(targets, probe.Target{
			CircuitID: c.ID,
			Proxy:     endpoint,
			Command:   cfg.Circuits.CommandFor(c),
		})
	}
	return targets, nil
}

// outputReport renders the session report in the requested format.
func outputReport(cfg *config.Config, probeReport *model.ProbeReport) error {
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list which circuits carried which connections, so the
		// file is readable by the owner only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(probeReport)
	return err
}
