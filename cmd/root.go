// Copyright 2025 the airs-mcp authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/server"
	"github.com/airsstack/airs-mcp/internal/server/mcp"
	"github.com/airsstack/airs-mcp/internal/telemetry"
)

var (
	// versionString indicates the version of this library.
	//go:embed version.txt
	versionString string
	// metadataString indicates additional build or distribution metadata.
	metadataString string
)

func init() {
	versionString = semanticVersion()
}

// semanticVersion returns the version of the CLI including a compile-time metadata.
func semanticVersion() string {
	v := strings.TrimSpace(versionString)
	if metadataString != "" {
		v += "+" + metadataString
	}
	return v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command represents an invocation of the CLI.
type Command struct {
	*cobra.Command

	cfg          server.ServerConfig
	logger       log.Logger
	securityFile string
	outStream    io.Writer
	errStream    io.Writer
}

// Option configures a Command for tests.
type Option func(*Command)

// WithStreams redirects the command's output streams.
func WithStreams(out, err io.Writer) Option {
	return func(c *Command) {
		c.outStream = out
		c.errStream = err
	}
}

// NewCommand returns a Command object representing an invocation of the CLI.
func NewCommand(opts ...Option) *Command {
	baseCmd := &cobra.Command{
		Use:           "airs-mcp",
		Version:       versionString,
		SilenceErrors: true,
	}
	cmd := &Command{
		Command:   baseCmd,
		outStream: os.Stdout,
		errStream: os.Stderr,
	}
	cmd.cfg.Version = versionString

	for _, o := range opts {
		o(cmd)
	}

	// set baseCmd out and err the same as cmd.
	baseCmd.SetOut(cmd.outStream)
	baseCmd.SetErr(cmd.errStream)

	flags := cmd.Flags()
	flags.StringVarP(&cmd.cfg.Address, "address", "a", "127.0.0.1", "Address of the interface the server will listen on.")
	flags.IntVarP(&cmd.cfg.Port, "port", "p", 5000, "Port the server will listen on.")
	flags.BoolVar(&cmd.cfg.Stdio, "stdio", false, "Serve MCP over stdio instead of HTTP.")
	flags.StringVar(&cmd.securityFile, "security-config", "", "File path specifying authentication and authorization configuration.")
	flags.BoolVar(&cmd.cfg.DisableReload, "disable-reload", false, "Disable hot-reload of the security configuration file.")
	flags.Var(&cmd.cfg.LogLevel, "log-level", "Specify the minimum level logged. Allowed: 'DEBUG', 'INFO', 'WARN', 'ERROR'.")
	flags.Var(&cmd.cfg.LoggingFormat, "logging-format", "Specify logging format to use. Allowed: 'standard' or 'JSON'.")
	flags.StringVar(&cmd.cfg.LogFile, "log-file", "", "Route logs to a rotating file. Required with --stdio when file logging is wanted; stdio never logs to stdout.")
	flags.StringVar(&cmd.cfg.TelemetryOTLP, "telemetry-otlp", "", "Enable exporting using OpenTelemetry Protocol (OTLP) to the specified endpoint (e.g. 'http://127.0.0.1:4318')")

	// wrap RunE command so that we have access to original Command object
	cmd.RunE = func(*cobra.Command, []string) error { return run(cmd) }

	cmd.AddCommand(newCallCmd(cmd))

	return cmd
}

// buildLogger selects the log sink. Over stdio the out stream is the
// wire, so logs go to the configured file or to stderr, never stdout.
// AIRS_MCP_LOG overrides the default level when no flag is given.
func buildLogger(cmd *Command) (log.Logger, error) {
	level := cmd.cfg.LogLevel.String()
	if !cmd.Flags().Changed("log-level") {
		if env := os.Getenv("AIRS_MCP_LOG"); env != "" {
			if err := cmd.cfg.LogLevel.Set(env); err == nil {
				level = cmd.cfg.LogLevel.String()
			}
		}
	}
	if cmd.cfg.LogFile != "" {
		return log.NewFileLogger(cmd.cfg.LogFile, level)
	}
	out := cmd.outStream
	if cmd.cfg.Stdio {
		out = cmd.errStream
	}
	switch strings.ToLower(cmd.cfg.LoggingFormat.String()) {
	case "json":
		return log.NewStructuredLogger(out, cmd.errStream, level)
	case "standard":
		return log.NewStdLogger(out, cmd.errStream, level)
	default:
		return nil, fmt.Errorf("logging format invalid")
	}
}

// loadSecurity reads and strict-parses the security config file.
func loadSecurity(path string) (server.SecurityConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return server.SecurityConfig{}, fmt.Errorf("unable to read security config at %q: %w", path, err)
	}
	cfg, err := server.UnmarshalSecurityConfig(buf)
	if err != nil {
		return server.SecurityConfig{}, fmt.Errorf("unable to parse security config at %q: %w", path, err)
	}
	return cfg, nil
}

// watchSecurity re-applies the API key table when the config file
// changes.
func watchSecurity(ctx context.Context, cmd *Command, s *server.Server) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch security config: %w", err)
	}
	if err := watcher.Add(cmd.securityFile); err != nil {
		watcher.Close()
		return fmt.Errorf("unable to watch security config: %w", err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := loadSecurity(cmd.securityFile)
				if err != nil {
					cmd.logger.Error(fmt.Sprintf("security config reload skipped: %v", err))
					continue
				}
				s.ReplaceApiKeys(cfg.ApiKeys)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				cmd.logger.Warn(fmt.Sprintf("security config watcher: %v", err))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func run(cmd *Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := buildLogger(cmd)
	if err != nil {
		return fmt.Errorf("unable to initialize logger: %w", err)
	}
	cmd.logger = logger

	// Set up OpenTelemetry
	otelShutdown, err := telemetry.SetupOTel(ctx, versionString, cmd.cfg.TelemetryOTLP)
	if err != nil {
		errMsg := fmt.Errorf("error setting up OpenTelemetry: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			cmd.logger.Error(fmt.Sprintf("error shutting down OpenTelemetry: %v", err))
		}
	}()

	if cmd.securityFile != "" {
		security, err := loadSecurity(cmd.securityFile)
		if err != nil {
			cmd.logger.Error(err.Error())
			return err
		}
		cmd.cfg.Security = security
	}

	handler := mcp.NewHandler(versionString).Build()
	s, err := server.NewServer(cmd.cfg, handler, cmd.logger)
	if err != nil {
		errMsg := fmt.Errorf("server failed to initialize: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	defer func() {
		if err := s.Shutdown(context.Background()); err != nil {
			cmd.logger.Error(fmt.Sprintf("error during shutdown: %v", err))
		}
	}()

	if cmd.securityFile != "" && !cmd.cfg.DisableReload {
		if err := watchSecurity(ctx, cmd, s); err != nil {
			cmd.logger.Warn(err.Error())
		}
	}

	if cmd.cfg.Stdio {
		return s.ServeStdio(ctx)
	}

	addr, err := s.Listen(ctx)
	if err != nil {
		errMsg := fmt.Errorf("server failed to mount listener: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	cmd.logger.Info(fmt.Sprintf("server ready to serve on %s", addr))

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve() }()

	select {
	case err := <-serveErr:
		if err != nil {
			errMsg := fmt.Errorf("server crashed with the following error: %w", err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
		return nil
	case <-ctx.Done():
		cmd.logger.Info("shutdown signal received")
		return nil
	}
}
