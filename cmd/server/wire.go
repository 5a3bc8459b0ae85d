//go:build wireinject
// +build wireinject

package main

import (
	"github.com/beldeveloper/orbit/internal/app/file"
	"github.com/beldeveloper/orbit/internal/app/http"
	"github.com/beldeveloper/orbit/internal/app/svc"
	"github.com/google/wire"
)

func initializeContainer() (container, error) {
	wire.Build(
		file.NewSite,
		svc.NewSite,
		svc.NewGithub,
		svc.NewDeployer,
		http.NewHandler,
		http.NewRouter,
		newContainer,
		newLogger,
		newToolchain,
		newBuildInfo,
		siteFile,
		newAccessKey,
		githubToken,
		githubApiURL,
	)
	return container{}, nil
}
