// Package ingestion turns an uploaded file or archive into a project's file
// tree. Submissions are validated synchronously; the work runs in the
// background and reports through the progress tracker.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mshare/mshare/internal/apperr"
	"github.com/mshare/mshare/internal/blob"
	"github.com/mshare/mshare/internal/progress"
	"github.com/mshare/mshare/internal/project"
	"github.com/mshare/mshare/internal/tree"
	"github.com/mshare/mshare/pkg/extract"
	"github.com/mshare/mshare/pkg/filetype"
)

// AcceptedMessage is returned alongside the upload id once a submission is
// queued.
const AcceptedMessage = "Upload started. Processing in background."

// DefaultIgnore lists archive members that are never ingested.
var DefaultIgnore = []string{"__MACOSX", ".DS_Store"}

// Upload is the raw payload of a submission.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubmitRequest asks for an upload to be ingested into a project.
type SubmitRequest struct {
	ProjectID string
	CallerID  string
	File      *Upload
	// Replace removes the project's existing nodes and blobs before the new
	// content is written. The removal happens in the background run, after
	// the submission has been accepted.
	Replace bool
}

// SubmitResult identifies the queued upload. The upload id is the project id.
type SubmitResult struct {
	Message  string `json:"message"`
	UploadID string `json:"uploadId"`
}

// Options tunes the engine.
type Options struct {
	// ScratchDir holds temporary extraction directories. Empty means the
	// system temp directory.
	ScratchDir string
	// Ignore names archive members skipped at every level.
	Ignore []string
	// MaxUploadBytes rejects larger payloads when positive.
	MaxUploadBytes int64
	// MaxExtractedBytes fails an archive whose extracted content grows past
	// it, when positive.
	MaxExtractedBytes int64
}

// Service orchestrates upload ingestion.
type Service struct {
	projects project.Store
	nodes    tree.Store
	blobs    blob.Client
	tracker  *progress.Tracker
	runner   Runner
	log      logrus.FieldLogger
	opts     Options
	ignore   map[string]bool
}

// NewService creates a new ingestion Service.
func NewService(projects project.Store, nodes tree.Store, blobs blob.Client, tracker *progress.Tracker, runner Runner, log logrus.FieldLogger, opts Options) *Service {
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	ignore := make(map[string]bool, len(opts.Ignore))
	for _, name := range opts.Ignore {
		ignore[name] = true
	}
	return &Service{
		projects: projects,
		nodes:    nodes,
		blobs:    blobs,
		tracker:  tracker,
		runner:   runner,
		log:      log,
		opts:     opts,
		ignore:   ignore,
	}
}

// Submit validates an upload, registers its progress and dispatches the
// background run. Nothing is recorded when validation fails.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := s.validate(req.File); err != nil {
		return nil, err
	}

	p, err := s.projects.Get(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("submit upload: %w", err)
	}
	if p.OwnerID != req.CallerID {
		return nil, fmt.Errorf("submit upload to project %s: caller does not own project: %w", p.ID, apperr.ErrForbidden)
	}
	if p.Status == project.StatusArchived {
		return nil, fmt.Errorf("submit upload to project %s: project is archived: %w", p.ID, apperr.ErrInvalidState)
	}

	if _, err := s.tracker.Begin(p.ID); err != nil {
		return nil, fmt.Errorf("submit upload: %w", err)
	}

	upload := *req.File
	upload.Name = baseName(upload.Name)
	taskCtx := context.WithoutCancel(ctx)
	replace := req.Replace
	s.runner.Go(func() {
		s.process(taskCtx, p.ID, &upload, replace)
	})

	return &SubmitResult{Message: AcceptedMessage, UploadID: p.ID}, nil
}

// Wait blocks until background runs finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.runner.Wait(ctx)
}

// clearTree removes every node of a project, then every blob stored under
// the project's key prefix. It returns the number of nodes removed.
func (s *Service) clearTree(ctx context.Context, projectID string) (int, error) {
	n, err := s.nodes.DeleteByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("clear tree of project %s: %w", projectID, err)
	}

	keys, err := s.blobs.List(ctx, projectID+"/")
	if err != nil {
		return n, fmt.Errorf("clear tree of project %s: %w", projectID, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, key := range keys {
		g.Go(func() error {
			return s.blobs.Delete(gctx, key)
		})
	}
	if err := g.Wait(); err != nil {
		return n, fmt.Errorf("clear tree of project %s: %w", projectID, err)
	}
	return n, nil
}

func (s *Service) validate(f *Upload) error {
	switch {
	case f == nil:
		return fmt.Errorf("no file uploaded: %w", apperr.ErrValidation)
	case baseName(f.Name) == "":
		return fmt.Errorf("uploaded file has no name: %w", apperr.ErrValidation)
	case len(f.Data) == 0:
		return fmt.Errorf("uploaded file %s is empty: %w", f.Name, apperr.ErrValidation)
	case s.opts.MaxUploadBytes > 0 && int64(len(f.Data)) > s.opts.MaxUploadBytes:
		return fmt.Errorf("uploaded file %s exceeds %d bytes: %w", f.Name, s.opts.MaxUploadBytes, apperr.ErrValidation)
	}
	return nil
}

// run accumulates counters for one upload.
type run struct {
	projectID string
	log       logrus.FieldLogger
	files     int
	folders   int
	bytes     int64
}

func (s *Service) process(ctx context.Context, projectID string, upload *Upload, replace bool) {
	start := time.Now()
	r := &run{projectID: projectID, log: s.log.WithField("project_id", projectID)}
	r.log.WithFields(logrus.Fields{"file": upload.Name, "bytes": len(upload.Data)}).Info("upload processing started")

	defer func() {
		if rec := recover(); rec != nil {
			s.fail(ctx, r, fmt.Errorf("upload processing panicked: %v", rec))
		}
	}()

	s.tracker.Update(projectID, func(p *progress.Progress) {
		p.Status = progress.StatusProcessing
	})

	var err error
	if replace {
		var removed int
		if removed, err = s.clearTree(ctx, projectID); err == nil {
			r.log.WithField("removed", removed).Info("cleared existing tree")
		}
	}
	if err == nil {
		err = s.ingest(ctx, r, upload)
	}
	if err == nil {
		err = s.markReady(ctx, r)
	}
	if err != nil {
		s.fail(ctx, r, err)
		return
	}

	s.tracker.Complete(projectID)
	r.log.WithFields(logrus.Fields{
		"files":       r.files,
		"folders":     r.folders,
		"bytes":       r.bytes,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("upload processing completed")
}

func (s *Service) ingest(ctx context.Context, r *run, upload *Upload) error {
	format, isArchive := extract.DetectFormat(upload.Name, upload.ContentType)
	if !isArchive {
		s.tracker.Update(r.projectID, func(p *progress.Progress) { p.TotalFiles = 1 })
		return s.ingestFile(ctx, r, upload)
	}

	scratch, err := os.MkdirTemp(s.opts.ScratchDir, "mshare-upload-*")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			r.log.WithError(err).Warn("remove scratch directory")
		}
	}()

	archive, err := extract.Open(format, upload.Data)
	if err != nil {
		return err
	}
	stats, err := extract.Materialize(ctx, archive, scratch, s.opts.MaxExtractedBytes)
	archive.Close()
	if err != nil {
		return err
	}
	total, err := s.countFiles(scratch)
	if err != nil {
		return fmt.Errorf("count extracted files: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"entries": stats.Files,
		"dirs":    stats.Dirs,
		"bytes":   stats.Bytes,
		"files":   total,
	}).Debug("archive extracted")
	s.tracker.Update(r.projectID, func(p *progress.Progress) { p.TotalFiles = total })

	return s.walk(ctx, r, scratch, nil, "")
}

// countFiles counts the regular files walk will ingest under dir, pruning
// ignored names the same way.
func (s *Service) countFiles(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if s.ignore[d.Name()] {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Service) ingestFile(ctx context.Context, r *run, upload *Upload) error {
	info := filetype.Classify(upload.Name, upload.Data)
	contentType := upload.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = info.MimeType
	}
	obj, err := s.blobs.Put(ctx, blob.Key(r.projectID, "", upload.Name), contentType, upload.Data)
	if err != nil {
		return err
	}
	node := fileNode(r.projectID, nil, "/"+upload.Name, upload.Name, 0, obj, info)
	if err := s.nodes.Create(ctx, node); err != nil {
		return fmt.Errorf("record file %s: %w", node.Path, err)
	}
	r.files++
	r.bytes += obj.Size
	s.tracker.Update(r.projectID, func(p *progress.Progress) {
		p.FilesProcessed = r.files
		p.Progress = progress.Percent(1, 1)
	})
	return nil
}

// walk creates nodes for dir's entries in pre-order. Folders are written
// before their contents. Each file node is written as soon as its blob is
// stored, so the counters never run ahead of the persisted tree.
func (s *Service) walk(ctx context.Context, r *run, dir string, parentID *string, parentPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read scratch directory: %w", err)
	}
	entries := dirEntries[:0]
	for _, e := range dirEntries {
		if !s.ignore[e.Name()] {
			entries = append(entries, e)
		}
	}

	for i, e := range entries {
		name := e.Name()
		nodePath := parentPath + "/" + name
		full := filepath.Join(dir, name)

		if e.IsDir() {
			folder := &tree.Node{
				ProjectID: r.projectID,
				ParentID:  parentID,
				Name:      name,
				IsFolder:  true,
				Path:      nodePath,
				Order:     i,
			}
			if err := s.nodes.Create(ctx, folder); err != nil {
				return fmt.Errorf("record folder %s: %w", nodePath, err)
			}
			r.folders++
			s.report(r, i+1, len(entries))
			if err := s.walk(ctx, r, full, &folder.ID, nodePath); err != nil {
				return err
			}
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}

		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read extracted file %s: %w", nodePath, err)
		}
		info := filetype.Classify(name, data)
		var parentKey string
		if parentID != nil {
			parentKey = *parentID
		}
		obj, err := s.blobs.Put(ctx, blob.Key(r.projectID, parentKey, name), info.MimeType, data)
		if err != nil {
			return err
		}
		node := fileNode(r.projectID, parentID, nodePath, name, i, obj, info)
		if err := s.nodes.Create(ctx, node); err != nil {
			return fmt.Errorf("record file %s: %w", nodePath, err)
		}
		r.files++
		r.bytes += obj.Size
		s.report(r, i+1, len(entries))
	}
	return nil
}

func (s *Service) report(r *run, doneAtLevel, totalAtLevel int) {
	s.tracker.Update(r.projectID, func(p *progress.Progress) {
		p.FilesProcessed = r.files
		p.FoldersCreated = r.folders
		p.Progress = progress.Percent(doneAtLevel, totalAtLevel)
	})
}

func (s *Service) markReady(ctx context.Context, r *run) error {
	p, err := s.projects.Get(ctx, r.projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	p.Status = project.StatusReady
	p.ItemCount = r.files + r.folders
	p.StorageUsed = r.bytes
	if err := s.projects.Save(ctx, p); err != nil {
		return fmt.Errorf("mark project ready: %w", err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, r *run, cause error) {
	msg := cause.Error()
	entry := r.log.WithError(cause).WithFields(logrus.Fields{"files": r.files, "folders": r.folders})
	switch {
	case errors.Is(cause, apperr.ErrExtraction):
		entry = entry.WithField("kind", "extraction")
	case errors.Is(cause, apperr.ErrStorage):
		entry = entry.WithField("kind", "storage")
	}
	entry.Error("upload processing failed")

	s.tracker.Fail(r.projectID, msg)

	p, err := s.projects.Get(ctx, r.projectID)
	if err != nil {
		r.log.WithError(err).Error("load project to record upload failure")
		return
	}
	p.Status = project.StatusFailed
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata[project.MetaUploadError] = msg
	p.Metadata[project.MetaUploadFailedAt] = time.Now().UTC().Format(time.RFC3339)
	if err := s.projects.Save(ctx, p); err != nil {
		r.log.WithError(err).Error("record upload failure on project")
	}
}

func fileNode(projectID string, parentID *string, nodePath, name string, order int, obj *blob.Object, info filetype.Info) *tree.Node {
	return &tree.Node{
		ProjectID: projectID,
		ParentID:  parentID,
		Name:      name,
		MimeType:  info.MimeType,
		Size:      obj.Size,
		Path:      nodePath,
		StorageID: obj.StorageID,
		URL:       obj.URL,
		Checksum:  obj.SHA1,
		Order:     order,
		Metadata: map[string]any{
			"category":  string(info.Category),
			"extension": info.Extension,
		},
	}
}

func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	b := path.Base(name)
	if b == "/" || b == "." || b == ".." {
		return ""
	}
	return b
}
