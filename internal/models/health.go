package models

// Health is the liveness payload served by the relay.
type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}
