package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	app "github.com/rocketscienceinc/scribbo-backend/internal"
	"github.com/rocketscienceinc/scribbo-backend/internal/config"
)

// main - is the entry point of the application. It builds the command tree and exits with its status.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	os.Exit(submain(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func submain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdin, stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	return 0
}

type options struct {
	configPath string
	host       string
	port       int
	name       string
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "scribbo",
		Short:         "Multiplayer square-drawing game",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "./config.yml", "path to the YAML config file")
	flags.StringVar(&opts.host, "host", "", "game server host (overrides config)")
	flags.IntVar(&opts.port, "port", 0, "game server port (overrides config)")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the authoritative game server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := initConfig(cmd, opts)
			if err != nil {
				return err
			}

			return app.RunApp(cmd.Context(), initLogger(conf, stdout), conf)
		},
	}

	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Join a game server from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := initConfig(cmd, opts)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("name") {
				conf.Client.Name = opts.name
			}

			// stdout belongs to the console
			return app.RunClient(cmd.Context(), initLogger(conf, stderr), conf, stdin, stdout)
		},
	}
	clientCmd.Flags().StringVar(&opts.name, "name", "", "display name (server assigns one when empty)")

	root.AddCommand(serverCmd, clientCmd)

	return root
}

// initialize config.
func initConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	conf, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("host") {
		conf.Host = opts.host
	}

	if cmd.Flags().Changed("port") {
		conf.Port = opts.port
	}

	if err = conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

// initialize logger.
func initLogger(conf *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level

	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
