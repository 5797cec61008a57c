package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lucasew/dircap/internal/app"
	"github.com/lucasew/dircap/internal/eviction"
	"github.com/lucasew/dircap/internal/handler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Starts the directory watchdog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		home := viper.GetString("home")
		if home == "" {
			dir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to find home directory: %w", err)
			}
			home = dir
		}

		stateDir := viper.GetString("state-dir")
		if stateDir == "" {
			cache, err := os.UserCacheDir()
			if err != nil {
				return fmt.Errorf("failed to find cache directory: %w", err)
			}
			stateDir = filepath.Join(cache, "dircap")
		}

		cfg := app.Config{
			HomeDir:      home,
			Limit:        viper.GetUint32("limit"),
			Interval:     viper.GetDuration("interval"),
			Strategy:     viper.GetString("strategy"),
			MinFreeSpace: viper.GetInt64("min-free-space"),
			StateDir:     stateDir,
			Journal:      viper.GetBool("journal"),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("Application is starting up", "home", home, "limit", cfg.Limit, "interval", cfg.Interval)
		handle, err := app.StartMonitoring(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to start monitoring: %w", err)
		}
		defer handle.Stop()

		ctx, quit := context.WithCancel(ctx)
		defer quit()

		g, gctx := errgroup.WithContext(ctx)
		if addr := viper.GetString("control-addr"); addr != "" {
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.NewControlHandler(handle, quit),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g.Go(func() error {
				slog.Info("Starting control server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("control server failed: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("Shutting down")
			return nil
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("home", "", "Home directory containing the watched \"test\" directory (default: current user's home)")
	runCmd.Flags().Uint32("limit", eviction.DefaultLimit, "Maximum number of eligible files before the oldest is deleted")
	runCmd.Flags().Duration("interval", eviction.DefaultInterval, "Interval between directory checks")
	runCmd.Flags().String("strategy", "oldest", fmt.Sprintf("Eviction strategy to use (%s)", strings.Join(eviction.Strategies(), ", ")))
	runCmd.Flags().Int64("min-free-space", 0, "Also evict when free disk space drops below this many bytes (0 disables)")
	runCmd.Flags().String("state-dir", "", "Directory for the lock file and journal (default: user cache dir)")
	runCmd.Flags().Bool("journal", false, "Record evictions in a SQLite journal in the state dir")

	mustBindPFlag("home", runCmd.Flags().Lookup("home"))
	mustBindPFlag("limit", runCmd.Flags().Lookup("limit"))
	mustBindPFlag("interval", runCmd.Flags().Lookup("interval"))
	mustBindPFlag("strategy", runCmd.Flags().Lookup("strategy"))
	mustBindPFlag("min-free-space", runCmd.Flags().Lookup("min-free-space"))
	mustBindPFlag("state-dir", runCmd.Flags().Lookup("state-dir"))
	mustBindPFlag("journal", runCmd.Flags().Lookup("journal"))
}
