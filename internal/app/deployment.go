package app

import (
	"context"
	"fmt"
	"github.com/beldeveloper/orbit/pkg/os"
	"github.com/beldeveloper/orbit/pkg/progress"
	"io"
	"path/filepath"
	"time"
)

const (
	// DeploymentsDir is the directory of the site that holds one subdirectory per deployment.
	DeploymentsDir = "deployments"
	// CurrentLink is the symlink of the site that points at the live deployment.
	CurrentLink = "current"
	// StorageDir is the directory shared by all deployments of the site.
	StorageDir = "storage"
	// EnvFile is the environment file shared by all deployments of the site.
	EnvFile = ".env"
	// KeepDeployments is the number of previous deployments kept next to the live one.
	KeepDeployments = 2
)

// StorageSkeleton lists the directories created inside a fresh shared storage directory.
var StorageSkeleton = []string{
	"logs",
	"app/public",
	"framework/cache",
	"framework/views",
	"framework/sessions",
}

// GithubToken is a data type for storing the credential used to download sources, used for DI.
type GithubToken string

// GithubApiURL is a data type for storing the base URL of the GitHub API, used for DI.
type GithubApiURL string

// Deployment is a model that represents a single deployment attempt.
type Deployment struct {
	ID        string    `json:"id"`
	Site      Site      `json:"site"`
	Ref       string    `json:"ref"`
	CreatedAt time.Time `json:"createdAt"`
}

// Dir returns the directory the deployment is built in.
func (d Deployment) Dir() string {
	return filepath.Join(d.Site.Path, DeploymentsDir, d.ID)
}

// DeployStep identifies the part of the pipeline that failed.
type DeployStep string

const (
	DeployStepBootstrap   DeployStep = "bootstrap"
	DeployStepDownload    DeployStep = "download"
	DeployStepExtraction  DeployStep = "extraction"
	DeployStepConfigure   DeployStep = "configure"
	DeployStepInstallDeps DeployStep = "install_deps"
	DeployStepRunCommands DeployStep = "run_commands"
	DeployStepOptimize    DeployStep = "optimize"
	DeployStepMigrate     DeployStep = "migrate"
	DeployStepPublish     DeployStep = "publish"
	DeployStepCleanup     DeployStep = "cleanup"
)

// DeployError is the terminal error of a failed deployment.
type DeployError struct {
	Step DeployStep
	Err  error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy step %s failed: %v", e.Step, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// DeploymentRun is the progress feed of a running deployment.
type DeploymentRun interface {
	// Deployment returns the attempt being run.
	Deployment() Deployment
	// Progress returns the events in execution order. The channel is closed when the run finishes.
	Progress() <-chan progress.Progress
	// Wait blocks until the run finishes and returns nil on success or a *DeployError.
	Wait() error
}

// Toolchain defines the commands run inside every deployment directory.
type Toolchain struct {
	Install  os.Cmd
	Optimize os.Cmd
	Migrate  os.Cmd
	// Manifest is the file that requires running Install.
	Manifest string
	// Installed is the directory that makes Install unnecessary.
	Installed string
}

// DefaultToolchain returns the toolchain of a Laravel application.
func DefaultToolchain() Toolchain {
	return Toolchain{
		Install: os.Cmd{
			Name: "composer",
			Args: []string{"install", "--no-dev", "--prefer-dist", "--no-interaction", "--optimize-autoloader"},
			Log:  true,
		},
		Optimize:  os.Cmd{Name: "php", Args: []string{"artisan", "optimize"}, Log: true},
		Migrate:   os.Cmd{Name: "php", Args: []string{"artisan", "migrate", "--force"}, Log: true},
		Manifest:  "composer.json",
		Installed: "vendor",
	}
}

// SourceSvc describes the service that provides the source code of a site.
type SourceSvc interface {
	Tarball(ctx context.Context, repo string, ref string) (io.ReadCloser, error)
}

// DeployerSvc describes the service that runs deployments.
type DeployerSvc interface {
	Deploy(ctx context.Context, site Site, ref string) DeploymentRun
}
