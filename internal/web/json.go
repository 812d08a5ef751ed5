package web

import (
	"github.com/sweeney/vessel-monitor/internal/status"
)

// wsEnvelope wraps every websocket message.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// stateMessage is the periodic websocket push: the same document as
// /index.json, without the envelope's "status" key.
func stateMessage(snap status.Snapshot) wsEnvelope {
	return wsEnvelope{Type: "state", Data: status.Build(snap).Status}
}
