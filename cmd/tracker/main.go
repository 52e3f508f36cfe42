// Package main is a terminal client for the item tracker. It works on the
// same storage as the server, one command per invocation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/itemtracker/internal/app"
	"github.com/vyrodovalexey/itemtracker/internal/config"
	"github.com/vyrodovalexey/itemtracker/internal/kv"
	"github.com/vyrodovalexey/itemtracker/internal/model"
	"github.com/vyrodovalexey/itemtracker/internal/storage"
	"github.com/vyrodovalexey/itemtracker/internal/tracker"
	"github.com/vyrodovalexey/itemtracker/internal/view"
)

const (
	defaultBackend = kv.BackendFile
	defaultPath    = "tracker.json"
	defaultUnit    = "Calories"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by every command.
type options struct {
	backend  string
	path     string
	redisURL string
	key      string
	unit     string
	verbose  bool
}

// session is one command's view of the tracker.
type session struct {
	ctrl    *app.Controller
	surface *view.View
	store   kv.Store
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Track items and their running total",
		Long: `tracker keeps a list of named items with a whole-number quantity
and prints the list with its total after every command.

Storage defaults come from the same APP_STORAGE_* variables the server uses.

Examples:
  tracker add "Steak Dinner" 1200
  tracker update 0 "Steak Dinner" 1100
  tracker delete 0
  tracker --backend badger --path ./data list`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.backend, "backend", "b", envOr(config.EnvStorageBackend, defaultBackend),
		"Storage backend: memory|file|badger|redis")
	flags.StringVarP(&opts.path, "path", "p", envOr(config.EnvStoragePath, defaultPath),
		"File path (file) or directory (badger)")
	flags.StringVar(&opts.redisURL, "redis-url", os.Getenv(config.EnvRedisURL), "Redis URL (redis backend)")
	flags.StringVarP(&opts.key, "key", "k", envOr(config.EnvStorageKey, storage.DefaultKey), "Storage key")
	flags.StringVarP(&opts.unit, "unit", "u", defaultUnit, "Quantity label")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log storage activity to stderr")

	rootCmd.AddCommand(
		newListCmd(opts),
		newTotalCmd(opts),
		newAddCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newClearCmd(opts),
	)

	return rootCmd
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all items and the total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(context.Context, *session) error { return nil })
		},
	}
}

func newTotalCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Print only the total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close(cmd.ErrOrStderr())

			_, err = fmt.Fprintln(cmd.OutOrStdout(), s.ctrl.Total())
			return err
		},
	}
}

func newAddCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME QUANTITY",
		Short: "Add an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				_, err := s.ctrl.Add(ctx, model.ItemInput{Name: args[0], Quantity: args[1]})
				return err
			})
		},
	}
}

func newUpdateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "update ID NAME QUANTITY",
		Short: "Change the name and quantity of an item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if _, err := s.ctrl.EditClick(ctx, id); err != nil {
					return err
				}
				_, err := s.ctrl.Update(ctx, model.ItemInput{Name: args[1], Quantity: args[2]})
				return err
			})
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if _, err := s.ctrl.EditClick(ctx, id); err != nil {
					return err
				}
				_, err := s.ctrl.DeleteSubmit(ctx)
				return err
			})
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				return s.ctrl.ClearClick(ctx)
			})
		},
	}
}

// withSession runs fn and prints the resulting list. Validation failures
// are reported per field.
func withSession(cmd *cobra.Command, opts *options, fn func(context.Context, *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close(cmd.ErrOrStderr())

	if err := fn(ctx, s); err != nil {
		var verr *tracker.ValidationError
		if errors.As(err, &verr) {
			for _, field := range slices.Sorted(maps.Keys(verr.Fields)) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, verr.Fields[field])
			}
		}
		return err
	}

	_, err = io.WriteString(cmd.OutOrStdout(), view.RenderText(s.surface.Snapshot(), opts.unit))
	return err
}

func openSession(ctx context.Context, opts *options, errOut io.Writer) (*session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := kv.Open(kv.Options{Backend: opts.backend, Path: opts.path, RedisURL: opts.redisURL})
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", opts.backend, err)
	}

	logger := newLogger(errOut, opts.verbose)
	surface := view.New(nil, logger)

	ctrl, err := app.New(ctx, storage.NewItems(store, opts.key), surface, logger)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	return &session{ctrl: ctrl, surface: surface, store: store}, nil
}

func (s *session) close(errOut io.Writer) {
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(errOut, "closing storage: %v\n", err)
	}
}

// newLogger logs warnings only, or everything with verbose, as console
// lines on errOut.
func newLogger(errOut io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(errOut), level)

	return zap.New(core)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid item ID %q: must be a whole number", arg)
	}
	return id, nil
}

func envOr(name, fallback string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return fallback
}
