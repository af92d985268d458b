package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/poddiscover/internal/pipeline"
	"github.com/TobiSchelling/poddiscover/internal/scheduler"
	"github.com/TobiSchelling/poddiscover/internal/server"
)

var (
	servePort        int
	serveHost        string
	serveNoScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server with background cache refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Scheduler.Enabled && !serveNoScheduler {
			trendingSpec, mentionsSpec := cfg.ScheduleSpecs()
			sched, err := scheduler.New(a.pipeline, scheduler.Options{
				TrendingSpec: trendingSpec,
				MentionsSpec: mentionsSpec,
			})
			if err != nil {
				return fmt.Errorf("configuring scheduler: %w", err)
			}
			sched.Start(a.trending.IsStale(a.trending.TTL()))
			defer sched.Stop()
		} else {
			log.Info().Msg("Background refresh disabled")
		}

		host := cfg.Server.Host
		if serveHost != "" {
			host = serveHost
		}
		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		addr := fmt.Sprintf("%s:%d", host, port)

		fmt.Printf("Starting server at http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, server.Deps{
			DB:          a.db,
			Directory:   a.dir,
			Recommender: a.recommender,
			Trending:    a.trending,
			Transcripts: a.transcripts,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, addr)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Interface to bind (default from config)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Do not refresh caches in the background")
}

// --- refresh command ---

var dryRun bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the trending and community mention caches",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var result *pipeline.Result
		if dryRun {
			result = a.pipeline.DryRun()
		} else {
			result = a.pipeline.Run(cmd.Context())
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("refresh finished with errors")
		}
		if !dryRun {
			fmt.Println("\nRefresh complete! Run 'poddiscover recommend' for suggestions.")
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}
