package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse-go/internal/cache"
	"github.com/repopulse/repopulse-go/internal/gitrepo"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the repository cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List cached repositories and their last fetch time",
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached working copies",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func newCacheManager() *cache.Manager {
	provider := gitrepo.NewGoGit(logger)
	return cache.NewManager(cfg.Cache.Directory, provider, logger, cfg.Analysis.FetchDepth, cfg.Cache.FreshFor)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	entries, err := newCacheManager().Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Cache is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tBRANCH\tLAST FETCH")
	for _, e := range entries {
		lastFetch := "unknown"
		if !e.LastFetch.IsZero() {
			lastFetch = e.LastFetch.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.URL, e.Branch, lastFetch)
	}
	return w.Flush()
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if err := newCacheManager().Clear(); err != nil {
		return err
	}
	fmt.Println("Cache cleared")
	return nil
}
