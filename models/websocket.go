package models

import "time"

// WSProtocol names the transport a captured connection used.
type WSProtocol string

const (
	ProtocolWebSocket WSProtocol = "websocket"
	ProtocolSocketIO  WSProtocol = "socket.io"
	ProtocolSSE       WSProtocol = "sse"
)

// WSDirection is which side sent a captured message.
type WSDirection string

const (
	DirectionSent     WSDirection = "sent"
	DirectionReceived WSDirection = "received"
)

// WSMessage is one captured WebSocket/SSE frame.
type WSMessage struct {
	Direction WSDirection `json:"direction"`
	Type      string      `json:"type,omitempty"`  // e.g. "open", "ping", "message"
	Event     string      `json:"event,omitempty"` // socket.io event name
	Data      string      `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketConnection is the raw capture of one WS/SSE session.
type WebSocketConnection struct {
	URL         string            `json:"url"`
	Protocol    WSProtocol        `json:"protocol"`
	Headers     map[string]string `json:"headers,omitempty"`
	Messages    []WSMessage       `json:"messages"`
	ConnectedAt time.Time         `json:"connectedAt"`
	ClosedAt    time.Time         `json:"closedAt,omitempty"`
}

// WSAuthMethod is where authentication material was found.
type WSAuthMethod string

const (
	WSAuthQuery  WSAuthMethod = "query"
	WSAuthHeader WSAuthMethod = "header"
	WSAuthCookie WSAuthMethod = "cookie"
	WSAuthToken  WSAuthMethod = "token"
)

// MessagePattern groups captured messages by (direction, type, event) and
// records their statistical shape.
type MessagePattern struct {
	Direction        WSDirection `json:"direction"`
	Type             string      `json:"type,omitempty"`
	Event            string      `json:"event,omitempty"`
	Frequency        int         `json:"frequency"`
	AvgIntervalMs    float64     `json:"avgIntervalMs"`
	SchemaExample    string      `json:"schemaExample,omitempty"`
	IsHandshake      bool        `json:"isHandshake"`
	IsHeartbeat      bool        `json:"isHeartbeat"`
}

// WSConfidence is the coarse trust level of a learned WebSocketPattern.
type WSConfidence string

const (
	WSConfidenceLow    WSConfidence = "low"
	WSConfidenceMedium WSConfidence = "medium"
	WSConfidenceHigh   WSConfidence = "high"
)

// WebSocketPattern is the reusable, replayable pattern learned from a
// WebSocketConnection capture.
type WebSocketPattern struct {
	ID              string           `json:"id"`
	Domain          string           `json:"domain"`
	Protocol        WSProtocol       `json:"protocol"`
	URLPattern      string           `json:"urlPattern"`
	MessagePatterns []MessagePattern `json:"messagePatterns"`
	AuthRequired    bool             `json:"authRequired"`
	AuthMethod      WSAuthMethod     `json:"authMethod,omitempty"`
	AuthParam       string           `json:"authParam,omitempty"`
	CanReplay       bool             `json:"canReplay"`
	Confidence      WSConfidence     `json:"confidence"`
	CreatedAt       time.Time        `json:"createdAt"`
}
