package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewpipe/internal/git"
	"github.com/joescharf/reviewpipe/internal/mcp"
	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/output"
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients run reviews and browse the review history.
Configure the client with:

  {
    "mcpServers": {
      "reviewpipe": { "command": "reviewpipe", "args": ["mcp"] }
    }
  }

Available tools: review_files, list_reviews, get_review`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	// stdout carries the protocol; all logging goes to stderr.
	ui = &output.UI{Out: os.Stderr, ErrOut: os.Stderr, Verbose: verbose, DryRun: dryRun}

	var st store.Store
	if viper.GetBool("history.enabled") {
		s, err := getStore()
		if err != nil {
			return err
		}
		st = s
	}

	reviewFiles := func(ctx context.Context, paths []string) (*review.State, error) {
		if err := checkLocalFiles(paths, configuredExtensions()); err != nil {
			return nil, err
		}
		provider := &git.LocalProvider{Paths: paths, Extensions: configuredExtensions()}
		return runReview(ctx, provider, models.ChangeRef{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(st, reviewFiles, thresholdsFromConfig(), buildVersion)
	return srv.ServeStdio(ctx)
}
