package svc

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/beldeveloper/orbit/internal/app"
	appOs "github.com/beldeveloper/orbit/pkg/os"
	"github.com/beldeveloper/orbit/pkg/progress"
	"go.uber.org/zap"
)

type fakeSource struct {
	files map[string]string
	raw   []byte
	err   error
	repo  string
	ref   string
}

func (s *fakeSource) Tarball(ctx context.Context, repo string, ref string) (io.ReadCloser, error) {
	s.repo, s.ref = repo, ref
	if s.err != nil {
		return nil, s.err
	}
	if s.raw != nil {
		return io.NopCloser(bytes.NewReader(s.raw)), nil
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range s.files {
		hdr := &tar.Header{
			Name:     "acme-blog-1a2b3c/" + name,
			Mode:     0644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	tw.Close()
	gz.Close()
	return io.NopCloser(&buf), nil
}

func testToolchain() app.Toolchain {
	return app.Toolchain{
		Install:   appOs.Cmd{Name: "sh", Args: []string{"-c", "echo installing; mkdir vendor"}, Log: true},
		Optimize:  appOs.Cmd{Name: "true"},
		Migrate:   appOs.Cmd{Name: "echo", Args: []string{"migrated"}},
		Manifest:  "composer.json",
		Installed: "vendor",
	}
}

func collect(t *testing.T, run app.DeploymentRun) ([]progress.Progress, error) {
	t.Helper()
	var events []progress.Progress
	done := make(chan error, 1)
	go func() {
		for p := range run.Progress() {
			events = append(events, p)
		}
		done <- run.Wait()
	}()
	select {
	case err := <-done:
		return events, err
	case <-time.After(30 * time.Second):
		t.Fatal("deployment did not finish")
		return nil, nil
	}
}

func stages(events []progress.Progress) []progress.Stage {
	var res []progress.Stage
	for _, p := range events {
		if s, ok := p.(progress.Stage); ok {
			res = append(res, s)
		}
	}
	return res
}

func hasLog(events []progress.Progress, want progress.Log) bool {
	for _, p := range events {
		if l, ok := p.(progress.Log); ok && l == want {
			return true
		}
	}
	return false
}

func failedStep(t *testing.T, err error) app.DeployStep {
	t.Helper()
	de, ok := err.(*app.DeployError)
	if !ok {
		t.Fatalf("Wait() error = %v, want *app.DeployError", err)
	}
	return de.Step
}

func TestDeployer_Deploy(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("APP_KEY=x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	source := &fakeSource{files: map[string]string{
		"composer.json":    "{}",
		"public/index.php": "<?php",
	}}
	deployer := NewDeployer(source, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog", Commands: []string{"echo hi"}}

	run := deployer.Deploy(context.Background(), site, "main")
	events, err := collect(t, run)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	want := []progress.Stage{
		progress.StageStarting,
		progress.StageDownloaded,
		progress.StageDepsInstalled,
		progress.StageOptimized,
		progress.StageMigrated,
		progress.StageDeployed,
	}
	if got := stages(events); !reflect.DeepEqual(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	for _, l := range []progress.Log{progress.Info("$ echo hi"), progress.Info("hi"), progress.Info("migrated")} {
		if !hasLog(events, l) {
			t.Errorf("missing log %+v in %+v", l, events)
		}
	}
	if source.repo != "acme/blog" || source.ref != "main" {
		t.Errorf("Tarball() called with %s@%s", source.repo, source.ref)
	}

	id := run.Deployment().ID
	target, err := os.Readlink(filepath.Join(root, app.CurrentLink))
	if err != nil || target != filepath.Join(app.DeploymentsDir, id) {
		t.Errorf("current -> %q (%v), want deployments/%s", target, err, id)
	}
	if _, err = os.Stat(filepath.Join(root, app.CurrentLink, "public", "index.php")); err != nil {
		t.Errorf("published file: %v", err)
	}
	for _, dir := range app.StorageSkeleton {
		if _, err = os.Stat(filepath.Join(root, app.StorageDir, dir)); err != nil {
			t.Errorf("storage skeleton %s: %v", dir, err)
		}
	}
	for _, link := range []string{app.StorageDir, app.EnvFile} {
		if ok, _ := appOs.IsSymlink(filepath.Join(run.Deployment().Dir(), link)); !ok {
			t.Errorf("%s is not linked into the deployment", link)
		}
	}
}

func TestDeployer_Deploy_SkipsInstalledDeps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string]string
		want  bool
	}{
		{name: "manifest without vendor", files: map[string]string{"composer.json": "{}"}, want: true},
		{name: "vendor shipped", files: map[string]string{"composer.json": "{}", "vendor/autoload.php": "<?php"}},
		{name: "no manifest", files: map[string]string{"index.html": "hi"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deployer := NewDeployer(&fakeSource{files: tt.files}, testToolchain(), zap.NewNop())
			site := app.Site{Name: "Blog", Path: t.TempDir(), GithubRepo: "acme/blog"}
			events, err := collect(t, deployer.Deploy(context.Background(), site, ""))
			if err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
			got := false
			for _, s := range stages(events) {
				got = got || s == progress.StageDepsInstalled
			}
			if got != tt.want {
				t.Errorf("deps installed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeployer_Deploy_DownloadFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := appOs.MakeDirs(filepath.Join(root, app.DeploymentsDir, "previous")); err != nil {
		t.Fatal(err)
	}
	previous := filepath.Join(app.DeploymentsDir, "previous")
	if err := os.Symlink(previous, filepath.Join(root, app.CurrentLink)); err != nil {
		t.Fatal(err)
	}
	source := &fakeSource{err: fmt.Errorf("unexpected response status 404")}
	deployer := NewDeployer(source, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog"}

	events, err := collect(t, deployer.Deploy(context.Background(), site, "nope"))
	if step := failedStep(t, err); step != app.DeployStepDownload {
		t.Errorf("failed step = %s, want %s", step, app.DeployStepDownload)
	}
	if got := stages(events); !reflect.DeepEqual(got, []progress.Stage{progress.StageStarting}) {
		t.Errorf("stages = %v", got)
	}
	if target, _ := os.Readlink(filepath.Join(root, app.CurrentLink)); target != previous {
		t.Errorf("current -> %q, want %q", target, previous)
	}
}

func TestDeployer_Deploy_CommandFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	deployer := NewDeployer(&fakeSource{files: map[string]string{"index.html": "hi"}}, testToolchain(), zap.NewNop())
	site := app.Site{
		Name:       "Blog",
		Path:       root,
		GithubRepo: "acme/blog",
		Commands:   []string{"sh -c 'echo boom >&2; exit 1'", "echo never"},
	}

	events, err := collect(t, deployer.Deploy(context.Background(), site, ""))
	if step := failedStep(t, err); step != app.DeployStepRunCommands {
		t.Errorf("failed step = %s, want %s", step, app.DeployStepRunCommands)
	}
	if !hasLog(events, progress.Error("boom")) {
		t.Errorf("stderr line missing in %+v", events)
	}
	if hasLog(events, progress.Info("never")) {
		t.Error("command after the failure was run")
	}
	if ok, _ := appOs.Exists(filepath.Join(root, app.CurrentLink)); ok {
		t.Error("failed deployment was published")
	}
}

func TestDeployer_Deploy_ReplacesCurrentDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := appOs.MakeDirs(filepath.Join(root, app.CurrentLink, "stale")); err != nil {
		t.Fatal(err)
	}
	deployer := NewDeployer(&fakeSource{files: map[string]string{"index.html": "hi"}}, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog"}

	if _, err := collect(t, deployer.Deploy(context.Background(), site, "")); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ok, _ := appOs.IsSymlink(filepath.Join(root, app.CurrentLink)); !ok {
		t.Error("current is not a symlink")
	}
}

func TestDeployer_Deploy_Retention(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	deployer := NewDeployer(&fakeSource{files: map[string]string{"index.html": "hi"}}, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog"}

	var ids []string
	for i := 0; i < 4; i++ {
		run := deployer.Deploy(context.Background(), site, "")
		if _, err := collect(t, run); err != nil {
			t.Fatalf("run %d: Wait() error = %v", i, err)
		}
		ids = append(ids, run.Deployment().ID)
	}

	entries, err := os.ReadDir(filepath.Join(root, app.DeploymentsDir))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	if !reflect.DeepEqual(got, ids[1:]) {
		t.Errorf("deployments = %v, want %v", got, ids[1:])
	}
}

func TestDeployer_Deploy_RetentionByModTime(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	now := time.Now()
	for i, name := range []string{"old-c", "old-a", "old-b"} {
		dir := filepath.Join(root, app.DeploymentsDir, name)
		if err := appOs.MakeDirs(dir); err != nil {
			t.Fatal(err)
		}
		mtime := now.Add(-time.Duration(10-i) * time.Hour)
		if err := os.Chtimes(dir, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	deployer := NewDeployer(&fakeSource{files: map[string]string{"index.html": "hi"}}, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog"}

	if _, err := collect(t, deployer.Deploy(context.Background(), site, "")); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ok, _ := appOs.Exists(filepath.Join(root, app.DeploymentsDir, "old-c")); ok {
		t.Error("the least recently modified deployment was kept")
	}
	for _, name := range []string{"old-a", "old-b"} {
		if ok, _ := appOs.Exists(filepath.Join(root, app.DeploymentsDir, name)); !ok {
			t.Errorf("%s was removed", name)
		}
	}
}

func TestDeployer_Deploy_ConsumerGone(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deployer := NewDeployer(&fakeSource{files: map[string]string{"index.html": "hi"}}, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog"}

	run := deployer.Deploy(ctx, site, "")
	done := make(chan error, 1)
	go func() { done <- run.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("deployment stalled without a consumer")
	}
	if ok, _ := appOs.IsSymlink(filepath.Join(root, app.CurrentLink)); !ok {
		t.Error("deployment was not published")
	}
}

func TestDeployer_Deploy_ExtractionFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	deployer := NewDeployer(&fakeSource{raw: []byte("<html>not a tarball</html>")}, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog"}

	events, err := collect(t, deployer.Deploy(context.Background(), site, ""))
	if step := failedStep(t, err); step != app.DeployStepExtraction {
		t.Errorf("failed step = %s, want %s", step, app.DeployStepExtraction)
	}
	if got := stages(events); !reflect.DeepEqual(got, []progress.Stage{progress.StageStarting}) {
		t.Errorf("stages = %v", got)
	}
	if ok, _ := appOs.Exists(filepath.Join(root, app.CurrentLink)); ok {
		t.Error("failed deployment was published")
	}
}

func TestDeployer_Deploy_BootstrapReportsStatFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	current := filepath.Join(root, app.CurrentLink)
	if err := os.Symlink(current, current); err != nil {
		t.Fatal(err)
	}
	deployer := NewDeployer(&fakeSource{files: map[string]string{"index.html": "hi"}}, testToolchain(), zap.NewNop())
	site := app.Site{Name: "Blog", Path: root, GithubRepo: "acme/blog"}

	events, err := collect(t, deployer.Deploy(context.Background(), site, ""))
	if step := failedStep(t, err); step != app.DeployStepBootstrap {
		t.Errorf("failed step = %s, want %s", step, app.DeployStepBootstrap)
	}
	if got := stages(events); !reflect.DeepEqual(got, []progress.Stage{progress.StageStarting}) {
		t.Errorf("stages = %v", got)
	}
	if target, _ := os.Readlink(current); target != current {
		t.Errorf("current -> %q, want it left unchanged", target)
	}
}
