package wspattern

import (
	"strings"
	"testing"
	"time"

	"github.com/use-agent/sift/models"
)

func TestLearn_DetectsSocketIOByURLMarker(t *testing.T) {
	conn := models.WebSocketConnection{
		URL:         "wss://chat.example.com/socket.io/?EIO=4&transport=websocket",
		ConnectedAt: time.Now(),
		ClosedAt:    time.Now().Add(6 * time.Second),
		Messages: []models.WSMessage{
			{Direction: models.DirectionReceived, Event: "connect", Timestamp: time.Now()},
		},
	}
	p := Learn("chat.example.com", conn)
	if p.Protocol != models.ProtocolSocketIO {
		t.Errorf("Protocol = %q, want socket.io", p.Protocol)
	}
	if !p.CanReplay {
		t.Error("expected socket.io pattern to always be replayable")
	}
}

func TestLearn_ConfidenceHighWithManyMessagesAndLongDuration(t *testing.T) {
	now := time.Now()
	var msgs []models.WSMessage
	for i := 0; i < 12; i++ {
		msgs = append(msgs, models.WSMessage{
			Direction: models.DirectionReceived,
			Type:      "message",
			Data:      `{"price": 1}`,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		})
	}
	conn := models.WebSocketConnection{
		URL:         "wss://prices.example.com/stream",
		ConnectedAt: now,
		ClosedAt:    now.Add(12 * time.Second),
		Messages:    msgs,
	}
	p := Learn("prices.example.com", conn)
	if p.Confidence != models.WSConfidenceHigh {
		t.Errorf("Confidence = %q, want high", p.Confidence)
	}
}

func TestLearn_DetectsQueryAuthAndScrubsURL(t *testing.T) {
	conn := models.WebSocketConnection{
		URL:         "wss://api.example.com/ws?token=secret123&channel=trades",
		ConnectedAt: time.Now(),
	}
	p := Learn("api.example.com", conn)
	if !p.AuthRequired || p.AuthMethod != models.WSAuthQuery || p.AuthParam != "token" {
		t.Errorf("expected query auth detection, got %+v", p)
	}
	if strings.Contains(p.URLPattern, "token=") {
		t.Errorf("expected token scrubbed from urlPattern, got %q", p.URLPattern)
	}
}

func TestLearn_IdentifiesHeartbeatMessages(t *testing.T) {
	conn := models.WebSocketConnection{
		URL: "wss://example.com/ws",
		Messages: []models.WSMessage{
			{Direction: models.DirectionSent, Type: "ping", Timestamp: time.Now()},
			{Direction: models.DirectionReceived, Type: "pong", Timestamp: time.Now()},
		},
	}
	p := Learn("example.com", conn)
	found := false
	for _, mp := range p.MessagePatterns {
		if mp.IsHeartbeat {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one message pattern marked as heartbeat")
	}
}
