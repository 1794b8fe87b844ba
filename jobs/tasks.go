package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogImport imports one YML feed file into the catalog.
	TaskCatalogImport = "catalog:import"
)

// ImportPayload names the feed file to import.
type ImportPayload struct {
	Path string `json:"path"`
	// RemoveAfter deletes the file once the task finishes, used for uploads.
	RemoveAfter bool `json:"remove_after"`
}

// NewImportTask constructs an Asynq task for a feed file.
func NewImportTask(payload ImportPayload) (*asynq.Task, error) {
	payload.Path = strings.TrimSpace(payload.Path)
	if payload.Path == "" {
		return nil, errors.New("jobs: import task requires a path")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogImport, data), nil
}
