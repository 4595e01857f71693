package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gpu-fitcheck/internal/app"
	"gpu-fitcheck/internal/config"
	"gpu-fitcheck/internal/logging"
)

// errDoesNotFit makes check exit with status 2 after a clean run.
var errDoesNotFit = errors.New("model does not fit")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := rootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errDoesNotFit):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	cfg        config.Config
	configFile string
	logger     zerolog.Logger
}

func rootCmd() *cobra.Command {
	c := &cli{cfg: config.FromEnv()}

	root := &cobra.Command{
		Use:           "gpu-fitcheck",
		Short:         "Estimate whether a model and batch size fit in GPU memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.configFile != "" {
				if err := c.applyFile(cmd); err != nil {
					return err
				}
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Level: c.cfg.LogLevel, File: c.cfg.LogFile})
			if err != nil {
				return err
			}
			c.logger = logger.With().Str("run_id", uuid.New().String()).Logger()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", os.Getenv("FITCHECK_CONFIG"), "YAML config file")
	config.BindFlags(root.PersistentFlags(), &c.cfg)

	root.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Compare the model estimate against GPU memory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app(cmd)
				defer a.Close()
				v, err := a.Check(cmd.Context())
				if err != nil {
					return err
				}
				if !v.Fits {
					return errDoesNotFit
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "estimate",
			Short: "Print the model memory estimate without querying a GPU",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app(cmd)
				defer a.Close()
				_, err := a.Estimate()
				return err
			},
		},
		&cobra.Command{
			Use:   "gpus",
			Short: "List GPU properties",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app(cmd)
				defer a.Close()
				_, err := a.GPUs(cmd.Context())
				return err
			},
		},
	)
	return root
}

func (c *cli) app(cmd *cobra.Command) *app.App {
	return app.New(app.Options{
		Config: c.cfg,
		Logger: c.logger,
		Out:    cmd.OutOrStdout(),
	})
}

// applyFile loads the config file, then restores flags given on the
// command line so they keep precedence over the file.
func (c *cli) applyFile(cmd *cobra.Command) error {
	scalars := map[string]string{}
	slices := map[string][]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			slices[f.Name] = append([]string(nil), sv.GetSlice()...)
			return
		}
		scalars[f.Name] = f.Value.String()
	})

	if err := config.LoadFile(c.configFile, &c.cfg); err != nil {
		return err
	}

	for name, v := range scalars {
		if err := cmd.Flags().Set(name, v); err != nil {
			return err
		}
	}
	for name, v := range slices {
		if err := cmd.Flags().Lookup(name).Value.(pflag.SliceValue).Replace(v); err != nil {
			return err
		}
	}
	return nil
}
