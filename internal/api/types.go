package api

import (
	"fmt"
	"net/http"
)

// CommandRequest carries the command text to relay to a city.
type CommandRequest struct {
	Name string `json:"name"`
}

// CommandResponse is the relay result: "OK" or "response: <first chunk>".
type CommandResponse struct {
	Result string `json:"result"`
}

// StatusResponse acknowledges a write.
type StatusResponse struct {
	Status string `json:"status"`
}

// StatsResponse summarises the directory.
type StatsResponse struct {
	Cities       int      `json:"cities"`
	Reporting    int      `json:"reporting"`
	Orphans      int      `json:"orphans"`
	OrphanIDs    []string `json:"orphan_ids"`
	Registration string   `json:"registration"`
}

// UploadResponse describes a stored screenshot.
type UploadResponse struct {
	Bytes  int64  `json:"bytes"`
	Digest string `json:"blake3"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalid      = "invalid"
	CodeConflict     = "name_conflict"
	CodeUnknown      = "node_unknown"
	CodePending      = "telemetry_pending"
	CodeRelayConnect = "relay_connect"
	CodeRelayWrite   = "relay_write"
	CodeRelayRead    = "relay_read"
	CodeRelayTimeout = "relay_timeout"
	CodeTooLarge     = "too_large"
	CodeInternal     = "internal"
)

// StatusError is returned by Client for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Code       string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("request failed: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("request failed: %s", e.Status)
}

// IsConflict reports whether the directory rejected a duplicate name.
func (e *StatusError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}
