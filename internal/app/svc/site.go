package svc

import (
	"context"
	"github.com/beldeveloper/go-errors-context"
	"github.com/beldeveloper/orbit/internal/app"
	"github.com/beldeveloper/orbit/internal/app/errtype"
	"strings"
	"unicode"
)

// NewSite creates a new instance of the sites service.
func NewSite(siteRepo app.SiteRepo, deployer app.DeployerSvc) app.SiteSvc {
	return Site{
		siteRepo: siteRepo,
		deployer: deployer,
	}
}

// Site is a service that manages the sites.
type Site struct {
	siteRepo app.SiteRepo
	deployer app.DeployerSvc
}

// Find the site by its slug.
func (s Site) Find(ctx context.Context, slug string) (app.Site, error) {
	site, err := s.siteRepo.FindBySlug(ctx, slug)
	return site, errors.WrapContext(err, errors.Context{
		Path:   "svc.Site.Find.FindBySlug",
		Params: errors.Params{"slug": slug},
	})
}

// Deploy starts a new deployment of the site. The ref is passed to the source as is when not blank.
func (s Site) Deploy(ctx context.Context, slug string, ref string) (app.DeploymentRun, error) {
	ref = strings.TrimSpace(ref)
	if !validRef(ref) {
		return nil, errors.WrapContext(errtype.ErrBadInput, errors.Context{
			Path:   "svc.Site.Deploy.ref",
			Params: errors.Params{"slug": slug, "ref": ref},
		})
	}
	site, err := s.Find(ctx, slug)
	if err != nil {
		return nil, errors.WrapContext(err, errors.Context{Path: "svc.Site.Deploy.Find"})
	}
	return s.deployer.Deploy(ctx, site, ref), nil
}

// validRef reports whether the ref can name a branch, a tag, or a commit. The empty ref is the default branch.
func validRef(ref string) bool {
	if ref == "" {
		return true
	}
	if strings.HasPrefix(ref, "-") || strings.HasPrefix(ref, "/") || strings.HasSuffix(ref, "/") ||
		strings.HasSuffix(ref, ".") || strings.HasSuffix(ref, ".lock") ||
		strings.Contains(ref, "..") || strings.Contains(ref, "//") || strings.Contains(ref, "@{") {
		return false
	}
	for _, r := range ref {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(`~^:?*[\`, r) {
			return false
		}
	}
	return true
}
