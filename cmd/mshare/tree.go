package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/mshare/mshare/internal/treequery"
	"github.com/mshare/mshare/pkg/surface"
)

func newTreeCmd(configPath *string) *cobra.Command {
	var (
		projectID string
		depth     int
		format    string
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print a project's file tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd.Context(), cmd.OutOrStdout(), *configPath, projectID, depth, format)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	cmd.Flags().IntVar(&depth, "depth", treequery.DefaultDepth, "Folder levels to expand; negative for all")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or markdown")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runTree(ctx context.Context, w io.Writer, configPath, projectID string, depth int, format string) error {
	renderer, err := surface.ForFormat(format)
	if err != nil {
		return err
	}
	if depth < 0 {
		depth = treequery.Unlimited
	}

	a, _, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tree, err := treequery.NewService(a.Projects, a.Nodes).GetTree(ctx, projectID, depth)
	if err != nil {
		return err
	}
	return renderer.Render(w, tree)
}
