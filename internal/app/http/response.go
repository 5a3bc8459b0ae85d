package http

import (
	"encoding/json"
	"github.com/beldeveloper/go-errors-context"
	"github.com/beldeveloper/orbit/internal/app/errtype"
	"go.uber.org/zap"
	"net/http"
)

// SetDefaultHeaders sets the basic set of headers to the response.
func SetDefaultHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "Accept,Authorization,Accept-Language,Content-Type,Content-Language")
}

// SetStreamHeaders sets the headers of the server-sent events response.
func SetStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
}

type errorBody struct {
	Error string `json:"error"`
}

func apiError(w http.ResponseWriter, logger *zap.Logger, err error) {
	SetDefaultHeaders(w)
	code := http.StatusInternalServerError
	switch true {
	case errors.Is(err, errtype.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, errtype.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, errtype.ErrBadInput):
		code = http.StatusBadRequest
	default:
		logger.Error("request failed", zap.Error(err))
	}
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorBody{Error: http.StatusText(code)}); err != nil {
		logger.Warn("cannot write the error response", zap.Error(err))
	}
}

func apiSuccess(w http.ResponseWriter, logger *zap.Logger, data interface{}) {
	SetDefaultHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("cannot write the response", zap.Error(err))
	}
}
