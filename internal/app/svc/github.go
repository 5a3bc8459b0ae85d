package svc

import (
	"context"
	"github.com/beldeveloper/go-errors-context"
	"github.com/beldeveloper/orbit/internal/app"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// UserAgent is sent with every request to the GitHub API.
const UserAgent = "orbit-deployer"

// NewGithub creates a new instance of the GitHub source service.
func NewGithub(token app.GithubToken, apiURL app.GithubApiURL) app.SourceSvc {
	return Github{
		token:  string(token),
		apiURL: strings.TrimRight(string(apiURL), "/"),
		client: &http.Client{},
	}
}

// Github is a service that downloads repository tarballs from GitHub.
type Github struct {
	token  string
	apiURL string
	client *http.Client
}

// Tarball requests the gzipped tarball of the repository at the ref. An empty ref means the default branch.
func (s Github) Tarball(ctx context.Context, repo string, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tarballURL(repo, ref), nil)
	if err != nil {
		return nil, errors.WrapContext(err, errors.Context{
			Path:   "svc.Github.Tarball.request",
			Params: errors.Params{"repository": repo, "ref": ref},
		})
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("User-Agent", UserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.WrapContext(err, errors.Context{
			Path:   "svc.Github.Tarball.do",
			Params: errors.Params{"repository": repo, "ref": ref},
		})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.NewWithContext("unexpected response status", errors.Context{
			Path:   "svc.Github.Tarball.status",
			Params: errors.Params{"repository": repo, "ref": ref, "status": resp.StatusCode},
		})
	}
	return resp.Body, nil
}

func (s Github) tarballURL(repo string, ref string) string {
	u := s.apiURL + "/repos/" + repo + "/tarball"
	if ref == "" {
		return u
	}
	segments := strings.Split(ref, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return u + "/" + strings.Join(segments, "/")
}
