package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mshare/mshare/internal/project"
)

func newProjectCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(newProjectCreateCmd(configPath), newProjectShowCmd(configPath))
	return cmd
}

func newProjectCreateCmd(configPath *string) *cobra.Command {
	var owner, name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectCreate(cmd.Context(), cmd.OutOrStdout(), *configPath, owner, name)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner user id (required)")
	cmd.Flags().StringVar(&name, "name", "", "Project name (required)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runProjectCreate(ctx context.Context, w io.Writer, configPath, owner, name string) error {
	a, _, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	p := &project.Project{OwnerID: owner, Name: name}
	if err := a.Projects.Create(ctx, p); err != nil {
		return err
	}
	fmt.Fprintln(w, p.ID)
	return nil
}

func newProjectShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Print a project's metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Projects.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
}
