package web

import (
	"github.com/machinewatch/machinewatch/internal/logstore"
	"github.com/machinewatch/machinewatch/internal/monitor"
	"github.com/machinewatch/machinewatch/internal/status"
)

// RecordView is one log record decorated for display.
type RecordView struct {
	logstore.Record
	Icon       status.Icon `json:"icon"`
	ColorClass string      `json:"colorClass"`
}

func toRecordView(rec logstore.Record) RecordView {
	return RecordView{
		Record:     rec,
		Icon:       status.Classify(rec.Status),
		ColorClass: status.ColorClass(rec.Status),
	}
}

// ConnectRequest is the body of POST /api/v1/connect. A blank endpoint falls
// back to the configured default.
type ConnectRequest struct {
	EndpointURL string `json:"endpointUrl"`
	Identity    string `json:"identity"`
}

// StateResponse is the payload for GET /api/v1/state and the "state" push
// event.
type StateResponse struct {
	State monitor.State `json:"state"`
}

// DefaultsResponse is the payload for GET /api/v1/defaults: the values the
// page prefills into its inputs.
type DefaultsResponse struct {
	EndpointURL string `json:"endpointUrl"`
	Identity    string `json:"identity"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State       monitor.State `json:"state"`
	RecordCount int           `json:"record_count"`
	Capacity    int           `json:"capacity"`
}

// SnapshotPayload is the initial push frame sent to a page on join.
type SnapshotPayload struct {
	State   monitor.State `json:"state"`
	Records []RecordView  `json:"records"`
}

// ErrorPayload is the payload of the "error" push event.
type ErrorPayload struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}
