package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/mshare/mshare/internal/ingestion"
	"github.com/mshare/mshare/internal/progress"
)

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		projectID string
		caller    string
		replace   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a file or archive into a project",
		Long: `Uploads a single file, or extracts a zip, tar or tar.gz archive, into the
project's tree. Runs in the foreground and reports the final progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), ingestOpts{
				configPath: *configPath,
				file:       args[0],
				projectID:  projectID,
				caller:     caller,
				replace:    replace,
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Target project id (required)")
	cmd.Flags().StringVar(&caller, "caller", "", "Caller user id (default: the project owner)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Remove the project's existing tree and blobs before ingesting")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

type ingestOpts struct {
	configPath string
	file       string
	projectID  string
	caller     string
	replace    bool
}

func runIngest(ctx context.Context, w io.Writer, opts ingestOpts) error {
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.file, err)
	}

	a, log, err := openApp(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Projects.Get(ctx, opts.projectID)
	if err != nil {
		return err
	}

	svc := ingestion.NewService(a.Projects, a.Nodes, a.Blobs, a.Tracker, ingestion.InlineRunner{}, log, ingestion.Options{
		ScratchDir:        a.Config.Ingestion.ScratchDir,
		Ignore:            a.Config.Ingestion.Ignore,
		MaxUploadBytes:    a.Config.Ingestion.MaxUploadBytes,
		MaxExtractedBytes: a.Config.Ingestion.MaxExtractedBytes,
	})

	if _, err := svc.Submit(ctx, ingestion.SubmitRequest{
		ProjectID: p.ID,
		CallerID:  firstNonEmpty(opts.caller, p.OwnerID),
		File: &ingestion.Upload{
			Name:        filepath.Base(opts.file),
			ContentType: mimetype.Detect(data).String(),
			Data:        data,
		},
		Replace: opts.replace,
	}); err != nil {
		return err
	}

	prog, err := a.Tracker.Get(p.ID)
	if err != nil {
		return err
	}
	if prog.Status == progress.StatusFailed {
		return fmt.Errorf("ingest failed: %s", prog.Error)
	}
	fmt.Fprintf(w, "Ingested %s into %s: %d files, %d folders\n",
		filepath.Base(opts.file), p.ID, prog.FilesProcessed, prog.FoldersCreated)
	return nil
}
