package api

import "wanwatch/internal/model"

// NeighborsResponse is the body of GET /neighbors: a bare JSON array.
type NeighborsResponse = []model.NeighborRecord

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Transport string `json:"transport"`
	Router    string `json:"router,omitempty"`
	Auth      bool   `json:"auth"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StreamMessage is one frame pushed on /ws/neighbors.
type StreamMessage struct {
	Cycle     uint64                 `json:"cycle"`
	Neighbors []model.NeighborRecord `json:"neighbors"`
	Error     string                 `json:"error,omitempty"`
}
