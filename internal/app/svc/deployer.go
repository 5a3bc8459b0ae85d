package svc

import (
	"bytes"
	"context"
	"github.com/beldeveloper/go-errors-context"
	"github.com/beldeveloper/orbit/internal/app"
	"github.com/beldeveloper/orbit/internal/app/metrics"
	"github.com/beldeveloper/orbit/pkg/archive"
	appOs "github.com/beldeveloper/orbit/pkg/os"
	"github.com/beldeveloper/orbit/pkg/progress"
	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// NewDeployer creates a new instance of the deployer service.
func NewDeployer(source app.SourceSvc, toolchain app.Toolchain, logger *zap.Logger) app.DeployerSvc {
	return Deployer{
		source:    source,
		toolchain: toolchain,
		logger:    logger,
	}
}

// Deployer is a service that runs the deployment pipeline of a site.
type Deployer struct {
	source    app.SourceSvc
	toolchain app.Toolchain
	logger    *zap.Logger
}

type deployStep struct {
	name   app.DeployStep
	skip   func() (bool, error)
	action func() error
	// stage is reported after the action succeeds, empty means nothing to report.
	stage progress.Stage
}

// Deploy starts the deployment in the background and returns its progress feed.
// Canceling the context stops the delivery of progress but not the deployment.
func (s Deployer) Deploy(ctx context.Context, site app.Site, ref string) app.DeploymentRun {
	if abs, err := filepath.Abs(site.Path); err == nil {
		site.Path = abs
	}
	d := app.Deployment{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Site:      site,
		Ref:       ref,
		CreatedAt: time.Now(),
	}
	run := newDeploymentRun(ctx, d)
	go s.run(context.WithoutCancel(ctx), run)
	return run
}

func (s Deployer) run(ctx context.Context, r *deploymentRun) {
	d := r.deployment
	logger := s.logger.With(
		zap.String("site", d.Site.Name),
		zap.String("deployment", d.ID),
		zap.String("ref", d.Ref),
	)
	metrics.DeploymentStarted()
	logger.Info("deployment started")
	r.emit(progress.StageStarting)

	var err error
	for _, step := range s.steps(ctx, r) {
		if step.skip != nil {
			skip, skipErr := step.skip()
			if skipErr != nil {
				err = &app.DeployError{Step: step.name, Err: skipErr}
				break
			}
			if skip {
				logger.Debug("step skipped", zap.String("step", string(step.name)))
				continue
			}
		}
		if stepErr := step.action(); stepErr != nil {
			err = &app.DeployError{Step: step.name, Err: stepErr}
			break
		}
		if step.stage != "" {
			logger.Debug("stage reached", zap.String("stage", string(step.stage)))
			r.emit(step.stage)
		}
	}

	result := ""
	if err != nil {
		result = string(err.(*app.DeployError).Step)
		logger.Error("deployment failed", zap.Error(errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.run",
			Params: errors.Params{"site": d.Site.Name, "deployment": d.ID, "ref": d.Ref},
		})))
	} else {
		logger.Info("deployment finished")
	}
	metrics.DeploymentFinished(d.Site.Name, result, time.Since(d.CreatedAt))
	r.finish(err)
}

func (s Deployer) steps(ctx context.Context, r *deploymentRun) []deployStep {
	d := r.deployment
	var tarball []byte
	return []deployStep{
		{
			name:   app.DeployStepBootstrap,
			action: func() error { return s.bootstrap(d) },
		},
		{
			name: app.DeployStepDownload,
			action: func() (err error) {
				tarball, err = s.download(ctx, d)
				return err
			},
		},
		{
			name:   app.DeployStepExtraction,
			action: func() error { return archive.ExtractTarGz(bytes.NewReader(tarball), d.Dir()) },
			stage:  progress.StageDownloaded,
		},
		{
			name:   app.DeployStepConfigure,
			action: func() error { return s.configure(d) },
		},
		{
			name:   app.DeployStepInstallDeps,
			skip:   func() (bool, error) { return s.installSkipped(d) },
			action: func() error { return s.exec(ctx, r, s.toolchain.Install) },
			stage:  progress.StageDepsInstalled,
		},
		{
			name:   app.DeployStepRunCommands,
			action: func() error { return s.runCommands(ctx, r) },
		},
		{
			name:   app.DeployStepOptimize,
			action: func() error { return s.exec(ctx, r, s.toolchain.Optimize) },
			stage:  progress.StageOptimized,
		},
		{
			name:   app.DeployStepMigrate,
			action: func() error { return s.exec(ctx, r, s.toolchain.Migrate) },
			stage:  progress.StageMigrated,
		},
		{
			name:   app.DeployStepPublish,
			action: func() error { return s.publish(d) },
			stage:  progress.StageDeployed,
		},
		{
			name:   app.DeployStepCleanup,
			action: func() error { return s.retire(d) },
		},
	}
}

// bootstrap prepares the site layout and the directory of the deployment.
func (s Deployer) bootstrap(d app.Deployment) error {
	err := appOs.MakeDirs(d.Dir())
	if err != nil {
		return errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.bootstrap.deploymentDir",
			Params: errors.Params{"dir": d.Dir()},
		})
	}
	current := filepath.Join(d.Site.Path, app.CurrentLink)
	exists, err := appOs.Exists(current)
	if err != nil {
		return errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.bootstrap.currentExists",
			Params: errors.Params{"path": current},
		})
	}
	isLink, err := appOs.IsSymlink(current)
	if err != nil {
		return errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.bootstrap.currentIsSymlink",
			Params: errors.Params{"path": current},
		})
	}
	if exists && !isLink {
		err = appOs.RemoveDir(current)
		if err != nil {
			return errors.WrapContext(err, errors.Context{
				Path:   "svc.Deployer.bootstrap.current",
				Params: errors.Params{"path": current},
			})
		}
	}
	storage := filepath.Join(d.Site.Path, app.StorageDir)
	exists, err = appOs.Exists(storage)
	if err != nil {
		return errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.bootstrap.storageExists",
			Params: errors.Params{"dir": storage},
		})
	}
	if exists {
		return nil
	}
	dirs := make([]string, len(app.StorageSkeleton))
	for i, dir := range app.StorageSkeleton {
		dirs[i] = filepath.Join(storage, dir)
	}
	return errors.WrapContext(appOs.MakeDirs(dirs...), errors.Context{
		Path:   "svc.Deployer.bootstrap.storage",
		Params: errors.Params{"dir": storage},
	})
}

func (s Deployer) download(ctx context.Context, d app.Deployment) ([]byte, error) {
	body, err := s.source.Tarball(ctx, d.Site.GithubRepo, d.Ref)
	if err != nil {
		return nil, errors.WrapContext(err, errors.Context{Path: "svc.Deployer.download.Tarball"})
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	return data, errors.WrapContext(err, errors.Context{
		Path:   "svc.Deployer.download.read",
		Params: errors.Params{"repository": d.Site.GithubRepo},
	})
}

// configure links the shared environment file and storage into the deployment.
func (s Deployer) configure(d app.Deployment) error {
	env := filepath.Join(d.Site.Path, app.EnvFile)
	exists, err := appOs.Exists(env)
	if err != nil {
		return errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.configure.envExists",
			Params: errors.Params{"file": env},
		})
	}
	if exists {
		err = appOs.Symlink(env, filepath.Join(d.Dir(), app.EnvFile))
		if err != nil {
			return errors.WrapContext(err, errors.Context{Path: "svc.Deployer.configure.env"})
		}
	}
	storage := filepath.Join(d.Dir(), app.StorageDir)
	err = appOs.RemoveDir(storage)
	if err != nil {
		return errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.configure.removeStorage",
			Params: errors.Params{"dir": storage},
		})
	}
	err = appOs.Symlink(filepath.Join(d.Site.Path, app.StorageDir), storage)
	return errors.WrapContext(err, errors.Context{Path: "svc.Deployer.configure.storage"})
}

// installSkipped reports whether the dependencies need no installation: there is no manifest,
// or they were shipped with the source.
func (s Deployer) installSkipped(d app.Deployment) (bool, error) {
	manifest, err := appOs.Exists(filepath.Join(d.Dir(), s.toolchain.Manifest))
	if err != nil {
		return false, errors.WrapContext(err, errors.Context{Path: "svc.Deployer.installSkipped.manifest"})
	}
	installed, err := appOs.Exists(filepath.Join(d.Dir(), s.toolchain.Installed))
	if err != nil {
		return false, errors.WrapContext(err, errors.Context{Path: "svc.Deployer.installSkipped.installed"})
	}
	return !manifest || installed, nil
}

func (s Deployer) runCommands(ctx context.Context, r *deploymentRun) error {
	for _, line := range r.deployment.Site.Commands {
		argv, err := shlex.Split(line)
		if err == nil && len(argv) == 0 {
			err = errors.NewWithContext("empty command", errors.Context{Path: "svc.Deployer.runCommands.split"})
		}
		if err != nil {
			return errors.WrapContext(err, errors.Context{
				Path:   "svc.Deployer.runCommands.parse",
				Params: errors.Params{"command": line},
			})
		}
		err = s.exec(ctx, r, appOs.Cmd{Name: argv[0], Args: argv[1:], Log: true})
		if err != nil {
			return errors.WrapContext(err, errors.Context{Path: "svc.Deployer.runCommands.exec"})
		}
	}
	return nil
}

// exec runs the command in the deployment directory and reports its output lines.
func (s Deployer) exec(ctx context.Context, r *deploymentRun, cmd appOs.Cmd) error {
	cmd.Dir = r.deployment.Dir()
	err := appOs.Stream(ctx, cmd, func(l appOs.Line) {
		if l.Output == appOs.Stderr {
			r.emit(progress.Error(l.Text))
			return
		}
		r.emit(progress.Info(l.Text))
	})
	return errors.WrapContext(err, errors.Context{
		Path:   "svc.Deployer.exec",
		Params: errors.Params{"cmd": cmd.String()},
	})
}

// publish switches the current link of the site to the deployment.
func (s Deployer) publish(d app.Deployment) error {
	err := appOs.ReplaceSymlink(
		filepath.Join(app.DeploymentsDir, d.ID),
		filepath.Join(d.Site.Path, app.CurrentLink),
	)
	return errors.WrapContext(err, errors.Context{
		Path:   "svc.Deployer.publish",
		Params: errors.Params{"deployment": d.ID},
	})
}

// retire removes the old deployments keeping the most recently modified ones.
func (s Deployer) retire(d app.Deployment) error {
	root := filepath.Join(d.Site.Path, app.DeploymentsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return errors.WrapContext(err, errors.Context{
			Path:   "svc.Deployer.retire.ReadDir",
			Params: errors.Params{"dir": root},
		})
	}
	active := map[string]bool{d.Dir(): true}
	if target, err := os.Readlink(filepath.Join(d.Site.Path, app.CurrentLink)); err == nil {
		if !filepath.IsAbs(target) {
			target = filepath.Join(d.Site.Path, target)
		}
		active[filepath.Clean(target)] = true
	}
	type candidate struct {
		path     string
		modified time.Time
	}
	var old []candidate
	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		if !e.IsDir() || active[path] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		old = append(old, candidate{path: path, modified: info.ModTime()})
	}
	if len(old) <= app.KeepDeployments {
		return nil
	}
	sort.SliceStable(old, func(i, j int) bool {
		return old[i].modified.After(old[j].modified)
	})
	var res *multierror.Error
	for _, c := range old[app.KeepDeployments:] {
		err = appOs.RemoveDir(c.path)
		if err != nil {
			res = multierror.Append(res, err)
		}
	}
	return errors.WrapContext(res.ErrorOrNil(), errors.Context{
		Path:   "svc.Deployer.retire.RemoveDir",
		Params: errors.Params{"dir": root},
	})
}
