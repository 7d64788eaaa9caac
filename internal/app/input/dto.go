package input

import "encoding/json"

type SubmitRequest struct {
	WorldID string
	Name    string          `json:"name"`
	Args    json.RawMessage `json:"args"`
}

type SubmitResponse struct {
	InputID      string `json:"input_id"`
	Number       int64  `json:"number"`
	ReceivedTime int64  `json:"received_time"`
}

type Status string

const (
	StatusPending Status = "pending"
	StatusOK      Status = "ok"
	StatusError   Status = "error"
)

type StatusResponse struct {
	InputID string          `json:"input_id"`
	Name    string          `json:"name"`
	Number  int64           `json:"number"`
	Status  Status          `json:"status"`
	Value   json.RawMessage `json:"value,omitempty"`
	Message string          `json:"message,omitempty"`
}
