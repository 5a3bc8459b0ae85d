package http

import (
	"crypto/subtle"
	"github.com/beldeveloper/go-errors-context"
	"github.com/beldeveloper/orbit/internal/app"
	"github.com/beldeveloper/orbit/internal/app/errtype"
	"github.com/beldeveloper/orbit/pkg/progress"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"net/http"
	"strings"
	"time"
)

// KeepAliveInterval is the period of the comments sent to idle progress streams.
const KeepAliveInterval = 15 * time.Second

// NewHandler creates a new instance of the REST API handler.
func NewHandler(
	siteSvc app.SiteSvc,
	accessKey app.ApiAccessKey,
	build app.BuildInfo,
	logger *zap.Logger,
) Handler {
	return Handler{
		siteSvc:   siteSvc,
		accessKey: string(accessKey),
		build:     build,
		logger:    logger,
		keepAlive: KeepAliveInterval,
	}
}

// Handler handles the REST API requests.
type Handler struct {
	siteSvc   app.SiteSvc
	accessKey string
	build     app.BuildInfo
	logger    *zap.Logger
	keepAlive time.Duration
}

type indexResponse struct {
	Name    string        `json:"name"`
	Version app.BuildInfo `json:"version"`
}

// Index describes the running server.
func (h Handler) Index(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	apiSuccess(w, h.logger, indexResponse{Name: "orbit", Version: h.build})
}

// Deploy starts the deployment of the site and streams its progress as server-sent events.
// The deployment keeps running if the client goes away.
func (h Handler) Deploy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	err := h.validateKey(r)
	if err != nil {
		apiError(w, h.logger, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		apiError(w, h.logger, errors.NewWithContext("streaming is not supported", errors.Context{
			Path: "http.Handler.Deploy.flusher",
		}))
		return
	}
	run, err := h.siteSvc.Deploy(r.Context(), ps.ByName("site"), r.URL.Query().Get("ref"))
	if err != nil {
		apiError(w, h.logger, err)
		return
	}
	d := run.Deployment()
	logger := h.logger.With(zap.String("site", d.Site.Name), zap.String("deployment", d.ID))

	SetStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := progress.NewEncoder(w)
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	events := run.Progress()
	for events != nil {
		select {
		case <-r.Context().Done():
			logger.Info("client disconnected, the deployment continues")
			return
		case p, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			err = enc.Encode(p)
		case <-ticker.C:
			err = enc.KeepAlive()
		}
		if err != nil {
			logger.Warn("cannot write the progress", zap.Error(err))
			return
		}
		flusher.Flush()
	}

	err = run.Wait()
	if err == nil {
		return
	}
	err = enc.EncodeError(progress.NewErrorResponse(errorKind(err)))
	if err != nil {
		logger.Warn("cannot write the terminal error", zap.Error(err))
		return
	}
	flusher.Flush()
}

func (h Handler) validateKey(r *http.Request) error {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || h.accessKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.accessKey)) != 1 {
		return errors.WrapContext(errtype.ErrUnauthorized, errors.Context{Path: "http.Handler.validateKey"})
	}
	return nil
}

// errorKind maps the failed step of the deployment to the kind reported to the client.
func errorKind(err error) progress.ErrorKind {
	de, ok := err.(*app.DeployError)
	if !ok {
		return progress.ErrorBootstrap
	}
	switch de.Step {
	case app.DeployStepBootstrap:
		return progress.ErrorBootstrap
	case app.DeployStepDownload:
		return progress.ErrorDownload
	case app.DeployStepExtraction:
		return progress.ErrorExtraction
	case app.DeployStepConfigure:
		return progress.ErrorConfigure
	case app.DeployStepInstallDeps:
		return progress.ErrorInstallDeps
	case app.DeployStepRunCommands:
		return progress.ErrorRunCommands
	case app.DeployStepOptimize:
		return progress.ErrorOptimize
	case app.DeployStepMigrate:
		return progress.ErrorMigrate
	case app.DeployStepPublish:
		return progress.ErrorPublish
	case app.DeployStepCleanup:
		return progress.ErrorCleanup
	}
	return progress.ErrorBootstrap
}
