package queue

// Task types.
const (
	TypeIngestRun = "ingest:run"
)

// IngestRunPayload asks a worker to run the ingestion workflow.
type IngestRunPayload struct {
	Inputs map[string]any `json:"inputs"`
	User   string         `json:"user"`
}
