package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/logger"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/cacher"
)

var (
	fetchHigh       bool
	fetchForce      bool
	prefetchImp     int
	evictPreserve   bool
	evictToLowWater bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL",
	Short: "Return a local path for URL, downloading it if needed",
	Long: `Fetch resolves URL through the cache and prints where to play it from.

A degraded result prints the source URL instead of a local path.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		res, err := a.cache.GetOrFetch(ctx, args[0], fetchHigh, fetchForce)
		if err != nil {
			return err
		}
		switch {
		case res.Degraded:
			fmt.Printf("degraded: %s (%v)\n", res.Location(), res.Reason)
		case res.FromCache:
			fmt.Printf("hit: %s (%s)\n", res.Location(), humanize.IBytes(uint64(res.Size)))
		default:
			fmt.Printf("downloaded: %s (%s)\n", res.Location(), humanize.IBytes(uint64(res.Size)))
		}
		return nil
	}),
}

var prefetchCmd = &cobra.Command{
	Use:   "prefetch URL",
	Short: "Download URL in the background and report progress",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		stream := a.cache.Prefetch(args[0], domain.Importance(prefetchImp).Clamp())
		if stream == nil {
			fmt.Println("not queued: already cached, pending, rejected or deferred")
			return nil
		}
		defer stream.Close()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-stream.Events():
				if !ok {
					return reportPrefetch(a, args[0])
				}
				if ev.TotalBytes > 0 {
					fmt.Printf("\r%s / %s (%.0f%%)", humanize.IBytes(uint64(ev.BytesReceived)),
						humanize.IBytes(uint64(ev.TotalBytes)), ev.Fraction*100)
				} else {
					fmt.Printf("\r%s", humanize.IBytes(uint64(ev.BytesReceived)))
				}
			}
		}
	}),
}

func reportPrefetch(a *app, rawURL string) error {
	fmt.Println()
	key := domain.KeyFor(rawURL)
	for _, e := range a.cache.Entries() {
		if e.Key == key {
			fmt.Printf("cached: %s (%s)\n", a.fs.PathFor(key), humanize.IBytes(uint64(e.FileSizeBytes)))
			return nil
		}
	}
	return fmt.Errorf("prefetch of %s did not complete", rawURL)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and entry counts",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		s := a.cache.Stats()
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Entries:\t%d\n", s.EntryCount)
		fmt.Fprintf(tw, "Cached:\t%s\n", humanize.IBytes(uint64(s.CachedSizeBytes)))
		fmt.Fprintf(tw, "Limit:\t%s\n", humanize.IBytes(uint64(s.MaxCacheBytes)))
		fmt.Fprintf(tw, "Available:\t%s\n", humanize.IBytes(uint64(s.AvailableBytes)))
		fmt.Fprintf(tw, "Liked:\t%d\n", s.LikedCount)
		fmt.Fprintf(tw, "High importance:\t%d\n", s.HighImportance)
		return tw.Flush()
	}),
}

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove cached files",
	Long: `Evict removes every cached file, or with --to-low-water only the lowest
scoring files until the cache is back under its low-water mark.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		var report cacher.EvictionReport
		if evictToLowWater {
			report = a.cache.EvictToLowWater()
		} else {
			report = a.cache.EvictAll(evictPreserve)
		}
		printEviction(report)
		return nil
	}),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove files older than cache.max_age",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		printEviction(a.cache.SweepExpired())
		return nil
	}),
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile metadata with the files on disk",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		// Start already reconciles once; a second pass reports what remains
		report, err := a.cache.Reconcile()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d, adopted %d, resized %d\n", len(report.Removed), report.Adopted, report.Resized)
		return nil
	}),
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchHigh, "high", true, "Fetch at high priority")
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "Download again even when cached")
	prefetchCmd.Flags().IntVar(&prefetchImp, "importance", int(domain.DefaultImportance), "Importance 0-10")
	evictCmd.Flags().BoolVar(&evictPreserve, "preserve-high", false, "Keep high-importance and liked files")
	evictCmd.Flags().BoolVar(&evictToLowWater, "to-low-water", false, "Evict by score down to the low-water mark")
}

func printEviction(r cacher.EvictionReport) {
	fmt.Printf("evicted %d files, freed %s, %s remaining\n",
		r.Evicted, humanize.IBytes(uint64(r.FreedBytes)), humanize.IBytes(uint64(r.Remaining)))
	if r.Skipped > 0 {
		fmt.Printf("skipped %d protected files\n", r.Skipped)
	}
}

// withApp wraps a one-shot command with setup, startup and shutdown
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, zapLogger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := newApp(cfg, zapLogger)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		if err := a.start(ctx); err != nil {
			return err
		}
		return fn(ctx, a, args)
	}
}
