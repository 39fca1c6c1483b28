package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/repopulse/repopulse-go/internal/cache"
	"github.com/repopulse/repopulse-go/internal/gitrepo"
	"github.com/repopulse/repopulse-go/internal/narrative"
	"github.com/repopulse/repopulse-go/internal/pipeline"
	"github.com/repopulse/repopulse-go/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the configured repositories and write the report",
	Long: `Clones or refreshes each configured repository, analyzes the recent
history window and writes a markdown report. A repository that fails is
reported in the output without aborting the rest of the batch.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringP("output", "o", "", "report file (default from config, '-' for stdout)")
	analyzeCmd.Flags().Bool("force-refresh", false, "discard cached working copies and clone fresh")
	analyzeCmd.Flags().Bool("no-llm", false, "skip narrative generation even when configured")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	forceRefresh, _ := cmd.Flags().GetBool("force-refresh")
	noLLM, _ := cmd.Flags().GetBool("no-llm")
	outputFile, _ := cmd.Flags().GetString("output")
	if outputFile == "" {
		outputFile = cfg.Output.File
	}

	provider := gitrepo.NewGoGit(logger)
	manager := cache.NewManager(cfg.Cache.Directory, provider, logger, cfg.Analysis.FetchDepth, cfg.Cache.FreshFor)

	var narrator narrative.Generator = narrative.Disabled{}
	if cfg.LLM.Enabled && !noLLM {
		narrator = narrative.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.RequestsPerMinute, logger)
	}

	orchestrator := pipeline.New(manager, provider, narrator, logger, pipeline.Options{
		StaleDays:    cfg.Analysis.StaleDays,
		TopKFiles:    cfg.Analysis.TopKFiles,
		FetchDepth:   cfg.Analysis.FetchDepth,
		MaxWorkers:   cfg.Analysis.MaxWorkers,
		Timeout:      cfg.Analysis.Timeout,
		ForceRefresh: forceRefresh,
	})

	targets := cfg.Targets()
	logger.WithField("repositories", len(targets)).Info("Starting analysis")
	start := time.Now()

	batch := orchestrator.Run(context.Background(), targets)

	rendered := report.NewAssembler().Render(batch)
	if outputFile == "-" {
		if _, err := os.Stdout.Write(rendered); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(outputFile, rendered, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		logger.WithField("file", outputFile).Info("Report written")
	}

	logger.WithFields(logrus.Fields{
		"analyzed": len(batch.Results) - batch.FailureCount(),
		"failed":   batch.FailureCount(),
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Analysis finished")

	if batch.FailureCount() == len(batch.Results) {
		return fmt.Errorf("all %d repositories failed", len(batch.Results))
	}
	return nil
}
