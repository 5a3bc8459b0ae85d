package file

import (
	"context"
	"fmt"
	"github.com/beldeveloper/go-errors-context"
	"github.com/beldeveloper/orbit/internal/app"
	"github.com/beldeveloper/orbit/internal/app/errtype"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v2"
	"os"
	"strings"
)

// RegistryVersion is the only supported version of the site registry format.
const RegistryVersion = 1

type registry struct {
	Version int        `yaml:"version"`
	Sites   []app.Site `yaml:"sites"`
}

// NewSite loads the site registry from the YAML file.
func NewSite(path app.SiteFile) (app.SiteRepo, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, errors.WrapContext(err, errors.Context{
			Path:   "file.NewSite.read",
			Params: errors.Params{"file": path},
		})
	}
	repo, err := ParseSite(data)
	if err != nil {
		return nil, errors.WrapContext(err, errors.Context{
			Path:   "file.NewSite.parse",
			Params: errors.Params{"file": path},
		})
	}
	return repo, nil
}

// ParseSite builds the site registry from the YAML document.
func ParseSite(data []byte) (Site, error) {
	var reg registry
	err := yaml.UnmarshalStrict(data, &reg)
	if err != nil {
		return Site{}, fmt.Errorf("%w: %v", errtype.ErrInvalidConfig, err)
	}
	if reg.Version != RegistryVersion {
		return Site{}, fmt.Errorf("%w: unsupported version %d", errtype.ErrInvalidConfig, reg.Version)
	}
	s := Site{sites: reg.Sites, bySlug: make(map[string]app.Site, len(reg.Sites))}
	for i, site := range reg.Sites {
		if err = validate(site); err != nil {
			return Site{}, fmt.Errorf("%w: site #%d: %v", errtype.ErrInvalidConfig, i+1, err)
		}
		key := slug.Make(site.Name)
		if _, exists := s.bySlug[key]; exists {
			return Site{}, fmt.Errorf("%w: duplicate site slug %q", errtype.ErrInvalidConfig, key)
		}
		s.bySlug[key] = site
	}
	return s, nil
}

func validate(site app.Site) error {
	if strings.TrimSpace(site.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(site.Path) == "" {
		return fmt.Errorf("path is required for site %s", site.Name)
	}
	owner, repo, ok := strings.Cut(site.GithubRepo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return fmt.Errorf("invalid github_repo for site %s, must be in the format of owner/repo", site.Name)
	}
	for _, cmd := range site.Commands {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("empty command for site %s", site.Name)
		}
	}
	return nil
}

// Site implements the site registry backed by a file.
type Site struct {
	sites  []app.Site
	bySlug map[string]app.Site
}

// FindAll sites in the declaration order.
func (r Site) FindAll(ctx context.Context) ([]app.Site, error) {
	res := make([]app.Site, len(r.sites))
	copy(res, r.sites)
	return res, nil
}

// FindBySlug returns a site whose slugified name matches the slug.
func (r Site) FindBySlug(ctx context.Context, s string) (app.Site, error) {
	site, ok := r.bySlug[s]
	if !ok {
		return site, errors.WrapContext(errtype.ErrNotFound, errors.Context{
			Path:   "file.Site.FindBySlug",
			Params: errors.Params{"slug": s},
		})
	}
	return site, nil
}
