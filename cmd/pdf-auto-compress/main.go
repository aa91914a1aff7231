package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/logging"
	"github.com/Lllllllleong/pdftools/internal/services"
)

var (
	autoCompressInstance *services.AutoCompressFunction
	once                 sync.Once
	initErr              error
)

func init() {
	functions.CloudEvent("AutoCompress", autoCompress)
}

// main is required by the Go Functions Framework.
func main() {}

// autoCompress is the Cloud Function entry point for object finalize events.
func autoCompress(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var cfg config.Config
		cfg, initErr = config.Load(os.Getenv(config.EnvConfigPath))
		if initErr != nil {
			return
		}
		logger := logging.New(cfg.Log, os.Stdout)
		slog.SetDefault(logger)
		autoCompressInstance, initErr = services.NewAutoCompress(context.Background(), cfg, logger)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Process logs its own failures with context.
	return autoCompressInstance.Process(ctx, gcsEvent)
}
