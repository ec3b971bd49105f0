package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/mshare/mshare/internal/apperr"
	"github.com/mshare/mshare/internal/blob"
	"github.com/mshare/mshare/internal/progress"
	"github.com/mshare/mshare/internal/project"
	"github.com/mshare/mshare/internal/tree"
)

type fixture struct {
	svc      *Service
	projects *project.MemoryStore
	nodes    *tree.MemoryStore
	tracker  *progress.Tracker
	hook     *logtest.Hook
	scratch  string
	project  *project.Project
}

func newFixture(t *testing.T, blobs blob.Client, runner Runner) *fixture {
	t.Helper()
	if blobs == nil {
		blobs = blob.NewLocalStorage(t.TempDir(), "http://blobs.test")
	}
	if runner == nil {
		runner = InlineRunner{}
	}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		projects: project.NewMemoryStore(),
		nodes:    tree.NewMemoryStore(),
		tracker:  progress.NewTracker(),
		hook:     hook,
		scratch:  t.TempDir(),
	}
	f.svc = NewService(f.projects, f.nodes, blobs, f.tracker, runner, logger, Options{ScratchDir: f.scratch})

	f.project = &project.Project{OwnerID: "owner-1", Name: "demo"}
	if err := f.projects.Create(context.Background(), f.project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return f
}

func zipBytes(t *testing.T, files ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		fmt.Fprintf(fw, "content of %s", name)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func (f *fixture) submit(t *testing.T, upload *Upload) (*SubmitResult, error) {
	t.Helper()
	return f.svc.Submit(context.Background(), SubmitRequest{
		ProjectID: f.project.ID,
		CallerID:  "owner-1",
		File:      upload,
	})
}

func TestSubmitArchive(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	res, err := f.submit(t, &Upload{
		Name:        "a.zip",
		ContentType: "application/zip",
		Data:        zipBytes(t, "docs/readme.md", "src/main.js", "__MACOSX/._main.js"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.UploadID != f.project.ID || res.Message != AcceptedMessage {
		t.Errorf("result = %+v", res)
	}

	st, err := f.tracker.Get(f.project.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if st.Status != progress.StatusCompleted || st.Progress != 100 || st.CompletedAt == nil {
		t.Errorf("progress = %+v", st)
	}
	if st.FilesProcessed != 2 || st.FoldersCreated != 2 {
		t.Errorf("counters = files %d folders %d, want 2 and 2", st.FilesProcessed, st.FoldersCreated)
	}
	if st.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2 (ignored members excluded)", st.TotalFiles)
	}

	p, _ := f.projects.Get(ctx, f.project.ID)
	if p.Status != project.StatusReady || p.ItemCount != 4 {
		t.Errorf("project = status %s items %d, want READY 4", p.Status, p.ItemCount)
	}
	wantBytes := int64(len("content of docs/readme.md") + len("content of src/main.js"))
	if p.StorageUsed != wantBytes {
		t.Errorf("StorageUsed = %d, want %d", p.StorageUsed, wantBytes)
	}

	roots, _ := f.nodes.ListChildren(ctx, f.project.ID, nil)
	if len(roots) != 2 || roots[0].Name != "docs" || roots[1].Name != "src" {
		t.Fatalf("roots = %v", roots)
	}
	docs, _ := f.nodes.ListChildren(ctx, f.project.ID, &roots[0].ID)
	if len(docs) != 1 {
		t.Fatalf("docs children = %d, want 1", len(docs))
	}
	readme := docs[0]
	if readme.Path != "/docs/readme.md" || readme.MimeType != "text/markdown" || readme.Metadata["category"] != "DOCUMENT" {
		t.Errorf("readme = %+v", readme)
	}
	wantURL := "http://blobs.test/" + blob.Key(f.project.ID, roots[0].ID, "readme.md")
	if readme.URL != wantURL || readme.Checksum == "" {
		t.Errorf("readme URL = %q checksum = %q, want %q", readme.URL, readme.Checksum, wantURL)
	}

	assertParentInvariant(t, f.nodes, f.project.ID)
	assertScratchEmpty(t, f.scratch)
}

func TestSubmitSingleFile(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	if _, err := f.submit(t, &Upload{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hello")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	roots, _ := f.nodes.ListChildren(ctx, f.project.ID, nil)
	if len(roots) != 1 {
		t.Fatalf("roots = %d, want 1", len(roots))
	}
	n := roots[0]
	if n.IsFolder || n.Path != "/notes.txt" || n.ParentID != nil || n.Size != 5 {
		t.Errorf("node = %+v", n)
	}
	if n.URL != "http://blobs.test/"+f.project.ID+"/notes.txt" {
		t.Errorf("URL = %q", n.URL)
	}

	st, _ := f.tracker.Get(f.project.ID)
	if st.TotalFiles != 1 || st.FilesProcessed != 1 || st.Status != progress.StatusCompleted {
		t.Errorf("progress = %+v", st)
	}
	p, _ := f.projects.Get(ctx, f.project.ID)
	if p.Status != project.StatusReady || p.ItemCount != 1 {
		t.Errorf("project = %+v", p)
	}
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		caller  string
		project string
		upload  *Upload
		want    error
	}{
		{name: "no file", upload: nil, want: apperr.ErrValidation},
		{name: "empty data", upload: &Upload{Name: "a.txt"}, want: apperr.ErrValidation},
		{name: "empty name", upload: &Upload{Name: " ", Data: []byte("x")}, want: apperr.ErrValidation},
		{name: "unknown project", project: "missing", upload: &Upload{Name: "a.txt", Data: []byte("x")}, want: apperr.ErrNotFound},
		{name: "not owner", caller: "intruder", upload: &Upload{Name: "a.txt", Data: []byte("x")}, want: apperr.ErrForbidden},
		{
			name: "archived",
			setup: func(f *fixture) {
				f.project.Status = project.StatusArchived
				f.projects.Save(context.Background(), f.project)
			},
			upload: &Upload{Name: "a.txt", Data: []byte("x")},
			want:   apperr.ErrInvalidState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			if tt.setup != nil {
				tt.setup(f)
			}
			req := SubmitRequest{ProjectID: f.project.ID, CallerID: "owner-1", File: tt.upload}
			if tt.caller != "" {
				req.CallerID = tt.caller
			}
			if tt.project != "" {
				req.ProjectID = tt.project
			}
			_, err := f.svc.Submit(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if _, err := f.tracker.Get(req.ProjectID); !errors.Is(err, apperr.ErrNotFound) {
				t.Error("progress record created for rejected submission")
			}
			nodes, _ := f.nodes.ListByProject(context.Background(), f.project.ID)
			if len(nodes) != 0 {
				t.Errorf("nodes created for rejected submission: %d", len(nodes))
			}
		})
	}
}

func TestSubmitMaxUploadBytes(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.opts.MaxUploadBytes = 3
	_, err := f.submit(t, &Upload{Name: "a.txt", Data: []byte("four")})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitCorruptArchive(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	if _, err := f.submit(t, &Upload{Name: "broken.zip", Data: []byte("definitely not a zip")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st, _ := f.tracker.Get(f.project.ID)
	if st.Status != progress.StatusFailed || st.Error == "" || st.CompletedAt == nil {
		t.Errorf("progress = %+v", st)
	}
	p, _ := f.projects.Get(ctx, f.project.ID)
	if p.Status != project.StatusFailed {
		t.Errorf("project status = %s, want FAILED", p.Status)
	}
	if p.Metadata[project.MetaUploadError] != st.Error || p.Metadata[project.MetaUploadFailedAt] == nil {
		t.Errorf("project metadata = %v", p.Metadata)
	}
	nodes, _ := f.nodes.ListByProject(ctx, f.project.ID)
	if len(nodes) != 0 {
		t.Errorf("nodes = %d, want 0", len(nodes))
	}
	assertScratchEmpty(t, f.scratch)

	var logged bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["kind"] == "extraction" {
			logged = true
		}
	}
	if !logged {
		t.Error("extraction failure was not logged")
	}
}

type failingBlobs struct {
	mu      sync.Mutex
	allowed int
	inner   blob.Client
}

func (b *failingBlobs) Put(ctx context.Context, key, contentType string, data []byte) (*blob.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowed == 0 {
		return nil, &blob.StorageError{Backend: "test", Key: key, Err: errors.New("bucket unavailable")}
	}
	b.allowed--
	return b.inner.Put(ctx, key, contentType, data)
}

func (b *failingBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	return b.inner.Get(ctx, key)
}

func (b *failingBlobs) Delete(ctx context.Context, key string) error {
	return b.inner.Delete(ctx, key)
}

func (b *failingBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	return b.inner.List(ctx, prefix)
}

// panickingBlobs panics on every Put.
type panickingBlobs struct {
	blob.Client
}

func (panickingBlobs) Put(context.Context, string, string, []byte) (*blob.Object, error) {
	panic("object store client bug")
}

func TestSubmitStorageFailureKeepsWrittenNodes(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{name: "across directories", files: []string{"a/one.txt", "b/two.txt"}},
		{name: "within one directory", files: []string{"d/one.txt", "d/two.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := blob.NewLocalStorage(t.TempDir(), "http://blobs.test")
			f := newFixture(t, &failingBlobs{allowed: 1, inner: inner}, nil)
			ctx := context.Background()

			if _, err := f.submit(t, &Upload{Name: "a.zip", Data: zipBytes(t, tt.files...)}); err != nil {
				t.Fatalf("Submit: %v", err)
			}

			st, _ := f.tracker.Get(f.project.ID)
			if st.Status != progress.StatusFailed {
				t.Fatalf("progress = %+v", st)
			}
			p, _ := f.projects.Get(ctx, f.project.ID)
			if p.Status != project.StatusFailed {
				t.Errorf("project status = %s", p.Status)
			}

			nodes, _ := f.nodes.ListByProject(ctx, f.project.ID)
			files := 0
			for _, n := range nodes {
				if !n.IsFolder {
					files++
				}
			}
			if files != 1 || st.FilesProcessed != files {
				t.Errorf("file nodes = %d, FilesProcessed = %d; want both 1", files, st.FilesProcessed)
			}
			keys, _ := inner.List(ctx, f.project.ID+"/")
			if len(keys) != files {
				t.Errorf("stored blobs = %v, want one per file node", keys)
			}
			assertParentInvariant(t, f.nodes, f.project.ID)
			assertScratchEmpty(t, f.scratch)
		})
	}
}

func TestSubmitMaxExtractedBytes(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.opts.MaxExtractedBytes = 10

	if _, err := f.submit(t, &Upload{Name: "a.zip", Data: zipBytes(t, "big.txt")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st, _ := f.tracker.Get(f.project.ID)
	if st.Status != progress.StatusFailed {
		t.Fatalf("progress = %+v", st)
	}
	nodes, _ := f.nodes.ListByProject(context.Background(), f.project.ID)
	if len(nodes) != 0 {
		t.Errorf("nodes = %d, want 0", len(nodes))
	}
	assertScratchEmpty(t, f.scratch)

	var logged bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["kind"] == "extraction" {
			logged = true
		}
	}
	if !logged {
		t.Error("oversized archive was not logged as an extraction failure")
	}
}

func TestSubmitPanicMarksUploadFailed(t *testing.T) {
	f := newFixture(t, panickingBlobs{}, NewGoRunner())
	ctx := context.Background()

	if _, err := f.submit(t, &Upload{Name: "a.txt", Data: []byte("x")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := f.svc.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	st, _ := f.tracker.Get(f.project.ID)
	if st.Status != progress.StatusFailed || !strings.Contains(st.Error, "object store client bug") {
		t.Errorf("progress = %+v", st)
	}
	p, _ := f.projects.Get(ctx, f.project.ID)
	if p.Status != project.StatusFailed {
		t.Errorf("project status = %s, want FAILED", p.Status)
	}

	// The lock is released, so the project accepts the next upload.
	f.svc.blobs = blob.NewLocalStorage(t.TempDir(), "http://blobs.test")
	if _, err := f.submit(t, &Upload{Name: "a.txt", Data: []byte("x")}); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	if err := f.svc.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if st, _ := f.tracker.Get(f.project.ID); st.Status != progress.StatusCompleted {
		t.Errorf("status after retry = %s, want COMPLETED", st.Status)
	}
}

// blockingRunner queues tasks until released.
type blockingRunner struct {
	tasks []func()
}

func (r *blockingRunner) Go(task func()) { r.tasks = append(r.tasks, task) }

func (r *blockingRunner) Wait(context.Context) error {
	for _, task := range r.tasks {
		task()
	}
	r.tasks = nil
	return nil
}

func TestSubmitConflictWhileRunning(t *testing.T) {
	runner := &blockingRunner{}
	f := newFixture(t, nil, runner)

	if _, err := f.submit(t, &Upload{Name: "a.txt", Data: []byte("x")}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	st, _ := f.tracker.Get(f.project.ID)
	if st.Status != progress.StatusPending {
		t.Errorf("status before run = %s, want PENDING", st.Status)
	}

	_, err := f.submit(t, &Upload{Name: "b.txt", Data: []byte("y")})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second Submit: err = %v, want ErrConflict", err)
	}

	if err := f.svc.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if _, err := f.submit(t, &Upload{Name: "b.txt", Data: []byte("y")}); err != nil {
		t.Fatalf("Submit after completion: %v", err)
	}
	runner.Wait(context.Background())

	nodes, _ := f.nodes.ListByProject(context.Background(), f.project.ID)
	if len(nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(nodes))
	}
}

func TestGoRunnerWait(t *testing.T) {
	f := newFixture(t, nil, NewGoRunner())
	if _, err := f.submit(t, &Upload{Name: "a.zip", Data: zipBytes(t, "x/y/z.txt")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := f.svc.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	st, _ := f.tracker.Get(f.project.ID)
	if st.Status != progress.StatusCompleted || st.FoldersCreated != 2 || st.FilesProcessed != 1 {
		t.Errorf("progress = %+v", st)
	}
}

func TestClearTree(t *testing.T) {
	blobs := blob.NewLocalStorage(t.TempDir(), "http://blobs.test")
	f := newFixture(t, blobs, nil)
	ctx := context.Background()

	other := &project.Project{OwnerID: "owner-1", Name: "other"}
	if err := f.projects.Create(ctx, other); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := blobs.Put(ctx, blob.Key(other.ID, "", "keep.txt"), "text/plain", []byte("keep")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := f.submit(t, &Upload{Name: "a.zip", Data: zipBytes(t, "d/a.txt", "b.txt")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	n, err := f.svc.clearTree(ctx, f.project.ID)
	if err != nil || n != 3 {
		t.Fatalf("clearTree = %d, %v; want 3", n, err)
	}
	if keys, _ := blobs.List(ctx, f.project.ID+"/"); len(keys) != 0 {
		t.Errorf("blobs left after clear: %v", keys)
	}
	if _, err := blobs.Get(ctx, blob.Key(other.ID, "", "keep.txt")); err != nil {
		t.Errorf("blob of another project removed: %v", err)
	}
}

func TestSubmitReplace(t *testing.T) {
	seed := func(t *testing.T, runner Runner) (*fixture, *blob.LocalStorage) {
		t.Helper()
		blobs := blob.NewLocalStorage(t.TempDir(), "http://blobs.test")
		f := newFixture(t, blobs, runner)
		if _, err := f.submit(t, &Upload{Name: "old.zip", Data: zipBytes(t, "docs/a.txt", "docs/b.txt")}); err != nil {
			t.Fatalf("seed Submit: %v", err)
		}
		if runner != nil {
			runner.Wait(context.Background())
		}
		return f, blobs
	}
	replace := func(f *fixture, caller string) error {
		_, err := f.svc.Submit(context.Background(), SubmitRequest{
			ProjectID: f.project.ID,
			CallerID:  caller,
			File:      &Upload{Name: "new.txt", Data: []byte("new")},
			Replace:   true,
		})
		return err
	}

	t.Run("owner", func(t *testing.T) {
		f, blobs := seed(t, nil)
		ctx := context.Background()
		if err := replace(f, "owner-1"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		nodes, _ := f.nodes.ListByProject(ctx, f.project.ID)
		if len(nodes) != 1 || nodes[0].Path != "/new.txt" {
			t.Errorf("nodes after replace = %v", nodes)
		}
		keys, _ := blobs.List(ctx, f.project.ID+"/")
		if len(keys) != 1 || keys[0] != blob.Key(f.project.ID, "", "new.txt") {
			t.Errorf("blobs after replace = %v", keys)
		}
		p, _ := f.projects.Get(ctx, f.project.ID)
		if p.Status != project.StatusReady || p.ItemCount != 1 {
			t.Errorf("project = status %s items %d, want READY 1", p.Status, p.ItemCount)
		}
	})

	rejected := []struct {
		name   string
		runner Runner
		setup  func(t *testing.T, f *fixture)
		caller string
		want   error
	}{
		{name: "not owner", caller: "intruder", want: apperr.ErrForbidden},
		{
			name:   "archived",
			caller: "owner-1",
			setup: func(t *testing.T, f *fixture) {
				p, _ := f.projects.Get(context.Background(), f.project.ID)
				p.Status = project.StatusArchived
				if err := f.projects.Save(context.Background(), p); err != nil {
					t.Fatalf("archive: %v", err)
				}
			},
			want: apperr.ErrInvalidState,
		},
		{
			name:   "upload running",
			runner: &blockingRunner{},
			caller: "owner-1",
			setup: func(t *testing.T, f *fixture) {
				if _, err := f.submit(t, &Upload{Name: "c.txt", Data: []byte("c")}); err != nil {
					t.Fatalf("queue Submit: %v", err)
				}
			},
			want: apperr.ErrConflict,
		},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			f, blobs := seed(t, tt.runner)
			ctx := context.Background()
			if tt.setup != nil {
				tt.setup(t, f)
			}
			if err := replace(f, tt.caller); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			nodes, _ := f.nodes.ListByProject(ctx, f.project.ID)
			if len(nodes) != 3 {
				t.Errorf("nodes after rejected replace = %d, want 3", len(nodes))
			}
			keys, _ := blobs.List(ctx, f.project.ID+"/")
			if len(keys) != 2 {
				t.Errorf("blobs after rejected replace = %v, want 2", keys)
			}
		})
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"notes.txt":          "notes.txt",
		"dir/notes.txt":      "notes.txt",
		`C:\Users\me\a.zip`:  "a.zip",
		"":                   "",
		"/":                  "",
		"..":                 "",
	}
	for in, want := range tests {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func assertParentInvariant(t *testing.T, store *tree.MemoryStore, projectID string) {
	t.Helper()
	ctx := context.Background()
	nodes, err := store.ListByProject(ctx, projectID)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	for _, n := range nodes {
		if n.ParentID == nil {
			if n.Path != "/"+n.Name {
				t.Errorf("root node %s has path %s", n.Name, n.Path)
			}
			continue
		}
		parent, err := store.Get(ctx, projectID, *n.ParentID)
		if err != nil {
			t.Errorf("node %s: parent missing: %v", n.Path, err)
			continue
		}
		if !parent.IsFolder {
			t.Errorf("node %s: parent %s is not a folder", n.Path, parent.Path)
		}
		if n.Path != parent.Path+"/"+n.Name {
			t.Errorf("node path %s does not extend parent path %s", n.Path, parent.Path)
		}
	}
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch directory not cleaned: %d entries left", len(entries))
	}
}
