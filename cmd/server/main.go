package main

import (
	"context"
	"github.com/beldeveloper/go-errors-context"
	"github.com/beldeveloper/orbit/internal/app"
	"github.com/beldeveloper/orbit/internal/app/errtype"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// get the router and the logger using DI wire
	c, err := initializeContainer()
	if err != nil {
		log.Fatalf("main: %v\n", err)
	}
	defer c.logger.Sync()
	runHttpServer(c.router, c.logger)
}

type container struct {
	router *httprouter.Router
	logger *zap.Logger
}

func newContainer(router *httprouter.Router, logger *zap.Logger) container {
	return container{
		router: router,
		logger: logger,
	}
}

func getenv(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func siteFile() app.SiteFile {
	return app.SiteFile(getenv("ORBIT_CONFIG", "orbit.yaml"))
}

func newAccessKey() (app.ApiAccessKey, error) {
	key := os.Getenv("ORBIT_TOKEN")
	if key == "" {
		return "", errors.WrapContext(errtype.ErrInvalidConfig, errors.Context{
			Path:   "main.newAccessKey",
			Params: errors.Params{"env": "ORBIT_TOKEN"},
		})
	}
	return app.ApiAccessKey(key), nil
}

func githubToken() (app.GithubToken, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return "", errors.WrapContext(errtype.ErrInvalidConfig, errors.Context{
			Path:   "main.githubToken",
			Params: errors.Params{"env": "GITHUB_TOKEN"},
		})
	}
	return app.GithubToken(token), nil
}

func githubApiURL() app.GithubApiURL {
	return app.GithubApiURL(getenv("ORBIT_GITHUB_API_URL", "https://api.github.com"))
}

func newBuildInfo() app.BuildInfo {
	info := app.BuildInfo{Version: version}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			info.Revision = s.Value
		}
	}
	return info
}

func newToolchain() app.Toolchain {
	return app.DefaultToolchain()
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("ORBIT_DEBUG") == "true" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runHttpServer(router *httprouter.Router, logger *zap.Logger) {
	httpPort := getenv("ORBIT_HTTP_PORT", "8000")
	crtFile := os.Getenv("ORBIT_HTTPS_CRT")
	keyFile := os.Getenv("ORBIT_HTTPS_KEY")
	srv := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		var err error
		if len(crtFile) > 0 {
			err = srv.ListenAndServeTLS(crtFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve http", zap.Error(err), zap.String("port", httpPort))
		}
	}()
	logger.Info("listening for HTTP connections", zap.String("port", httpPort), zap.String("version", version))
	<-done
	logger.Info("stopping the application")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown", zap.Error(err))
	}
}
