package app

import "context"

// SiteFile is a data type for storing the path of the site registry file, used for DI.
type SiteFile string

// Site is a model that represents a deployable site.
type Site struct {
	Name       string   `yaml:"name" json:"name"`
	Path       string   `yaml:"path" json:"path"`
	GithubRepo string   `yaml:"github_repo" json:"githubRepo"`
	Commands   []string `yaml:"commands" json:"commands"`
}

// SiteRepo describes interactions with the site registry.
type SiteRepo interface {
	FindAll(ctx context.Context) ([]Site, error)
	FindBySlug(ctx context.Context, slug string) (Site, error)
}

// SiteSvc describes the site service.
type SiteSvc interface {
	Find(ctx context.Context, slug string) (Site, error)
	Deploy(ctx context.Context, slug string, ref string) (DeploymentRun, error)
}

// ApiAccessKey is a data type for storing the API bearer credential, used for DI.
type ApiAccessKey string
