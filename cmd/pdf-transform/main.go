package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/logging"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/services"
)

var (
	transformInstance *services.TransformFunction
	once              sync.Once
	initErr           error
)

func init() {
	functions.HTTP("HandleTransform", handleTransform)
}

func main() {}

// handleTransform is the HTTP handler for the transform service.
func handleTransform(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var cfg config.Config
		cfg, initErr = config.Load(os.Getenv(config.EnvConfigPath))
		if initErr != nil {
			return
		}
		logger := logging.New(cfg.Log, os.Stdout)
		slog.SetDefault(logger)
		transformInstance, initErr = services.NewTransform(context.Background(), cfg, logger)
	})
	if initErr != nil {
		slog.Error("Critical: Transform initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.TransformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := transformInstance.Process(r.Context(), &req)
	if err != nil {
		slog.Error("Transform failed", "error", err, "operation", req.Operation)
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(services.HTTPStatus(res))
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "jobId", res.JobID)
	}
}
