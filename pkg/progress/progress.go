// Package progress defines the deployment progress events and their wire representation.
package progress

import (
	"encoding/json"
	"fmt"
)

// Progress is a single deployment progress item, either a Log or a Stage.
type Progress interface {
	progress()
}

// Level defines the severity of a log line.
type Level string

const (
	// LevelInfo marks lines printed to the standard output of a deployment command.
	LevelInfo Level = "Info"
	// LevelError marks lines printed to the standard error of a deployment command.
	LevelError Level = "Error"
)

// Log is a line of output produced while deploying.
type Log struct {
	Level Level
	Text  string
}

// Info creates an informational log line.
func Info(text string) Log {
	return Log{Level: LevelInfo, Text: text}
}

// Error creates an error log line.
func Error(text string) Log {
	return Log{Level: LevelError, Text: text}
}

type logJSON struct {
	Type Level  `json:"type"`
	Log  string `json:"log"`
}

// MarshalJSON encodes the line as {"type": "Info"|"Error", "log": text}.
func (l Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(logJSON{Type: l.Level, Log: l.Text})
}

// UnmarshalJSON decodes the line and rejects unknown levels.
func (l *Log) UnmarshalJSON(data []byte) error {
	var v logJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Type {
	case LevelInfo, LevelError:
	default:
		return fmt.Errorf("unknown log type %q", v.Type)
	}
	l.Level = v.Type
	l.Text = v.Log
	return nil
}

func (Log) progress() {}

// Stage is a checkpoint of the deployment.
type Stage string

const (
	// StageStarting means the deployment has been started.
	StageStarting Stage = "starting"
	// StageDownloaded means the source has been downloaded and extracted.
	StageDownloaded Stage = "downloaded"
	// StageDepsInstalled means the dependencies have been installed.
	StageDepsInstalled Stage = "deps_installed"
	// StageOptimized means the deployment has been optimized.
	StageOptimized Stage = "optimized"
	// StageMigrated means the database has been migrated.
	StageMigrated Stage = "migrated"
	// StageDeployed means the deployment is live.
	StageDeployed Stage = "deployed"
)

// Stages lists every checkpoint in execution order.
var Stages = []Stage{
	StageStarting,
	StageDownloaded,
	StageDepsInstalled,
	StageOptimized,
	StageMigrated,
	StageDeployed,
}

// UnmarshalJSON decodes the stage and rejects unknown names.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	for _, known := range Stages {
		if Stage(v) == known {
			*s = known
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", v)
}

func (Stage) progress() {}

// ErrorKind describes which part of the deployment failed.
type ErrorKind string

const (
	ErrorBootstrap   ErrorKind = "bootstrap"
	ErrorDownload    ErrorKind = "download"
	ErrorExtraction  ErrorKind = "extraction"
	ErrorConfigure   ErrorKind = "configure"
	ErrorInstallDeps ErrorKind = "install_deps"
	ErrorRunCommands ErrorKind = "run_commands"
	ErrorOptimize    ErrorKind = "optimize"
	ErrorMigrate     ErrorKind = "migrate"
	ErrorPublish     ErrorKind = "publish"
	ErrorCleanup     ErrorKind = "cleanup"
)

// ErrorKinds lists every error kind.
var ErrorKinds = []ErrorKind{
	ErrorBootstrap,
	ErrorDownload,
	ErrorExtraction,
	ErrorConfigure,
	ErrorInstallDeps,
	ErrorRunCommands,
	ErrorOptimize,
	ErrorMigrate,
	ErrorPublish,
	ErrorCleanup,
}

// ParseErrorKind returns the kind with the given wire name.
func ParseErrorKind(s string) (ErrorKind, bool) {
	for _, k := range ErrorKinds {
		if ErrorKind(s) == k {
			return k, true
		}
	}
	return "", false
}

// Message returns the human readable description of the failure.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorBootstrap:
		return "Failed to bootstrap the project."
	case ErrorDownload:
		return "Failed to clone the repository."
	case ErrorExtraction:
		return "Failed to extract the repository contents."
	case ErrorConfigure:
		return "Failed to configure the deployment."
	case ErrorInstallDeps:
		return "Failed to install dependencies."
	case ErrorRunCommands:
		return "Failed to run defined commands."
	case ErrorOptimize:
		return "Failed to optimize the deployment."
	case ErrorMigrate:
		return "Failed to migrate the database."
	case ErrorPublish:
		return "Failed to publish the new deployment."
	case ErrorCleanup:
		return "Failed to cleanup old deployments."
	}
	return "Deployment failed."
}

// ErrorResponse is the payload of an error event.
type ErrorResponse struct {
	Error   ErrorKind `json:"error"`
	Message string    `json:"message"`
}

// NewErrorResponse creates the payload describing the failure kind.
func NewErrorResponse(k ErrorKind) ErrorResponse {
	return ErrorResponse{Error: k, Message: k.Message()}
}
