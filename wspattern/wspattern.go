// Package wspattern implements WebSocketPatternLearner (spec §4.12):
// turns one captured WebSocketConnection into a reusable WebSocketPattern
// describing its protocol, message shapes, and auth requirements.
//
// Grounded on the teacher's gorilla/websocket usage (browser/hijack.go
// captures raw frames the same shape as models.WSMessage here) — this
// package is the learning layer on top of that capture, not a transport.
package wspattern

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/use-agent/sift/models"
)

var authFieldRe = regexp.MustCompile(`(?i)"(token|auth|authorization)"\s*:`)

var pingTokens = map[string]bool{
	"ping": true, "pong": true, "2": true, "3": true, // socket.io engine.io ping/pong codes
}

// Learn derives a WebSocketPattern from a raw connection capture.
func Learn(domain string, conn models.WebSocketConnection) models.WebSocketPattern {
	protocol := detectProtocol(conn)
	duration := connectionDuration(conn)

	patterns := groupMessagePatterns(conn.Messages)
	authRequired, authMethod, authParam := detectAuth(conn)

	pattern := models.WebSocketPattern{
		ID:              patternID(domain, conn.URL, protocol),
		Domain:          domain,
		Protocol:        protocol,
		URLPattern:      scrubAuthParams(conn.URL),
		MessagePatterns: patterns,
		AuthRequired:    authRequired,
		AuthMethod:      authMethod,
		AuthParam:       authParam,
		CanReplay:       canReplay(protocol, patterns, duration),
		Confidence:      confidenceLevel(len(conn.Messages), duration),
		CreatedAt:       time.Now(),
	}
	return pattern
}

func connectionDuration(conn models.WebSocketConnection) time.Duration {
	if conn.ClosedAt.IsZero() || conn.ConnectedAt.IsZero() {
		return 0
	}
	return conn.ClosedAt.Sub(conn.ConnectedAt)
}

// detectProtocol implements spec §4.12's protocol detection rules.
func detectProtocol(conn models.WebSocketConnection) models.WSProtocol {
	lowerURL := strings.ToLower(conn.URL)
	if strings.Contains(lowerURL, "socket.io") || strings.Contains(lowerURL, "engine.io") {
		return models.ProtocolSocketIO
	}
	for _, m := range conn.Messages {
		if m.Event == "connect" || m.Event == "disconnect" {
			return models.ProtocolSocketIO
		}
	}
	if ct, ok := conn.Headers["Accept"]; ok && strings.Contains(ct, "text/event-stream") {
		return models.ProtocolSSE
	}
	if ct, ok := conn.Headers["Content-Type"]; ok && strings.Contains(ct, "text/event-stream") {
		return models.ProtocolSSE
	}
	return models.ProtocolWebSocket
}

func confidenceLevel(messageCount int, duration time.Duration) models.WSConfidence {
	switch {
	case messageCount >= 10 && duration >= 5*time.Second:
		return models.WSConfidenceHigh
	case messageCount >= 3:
		return models.WSConfidenceMedium
	default:
		return models.WSConfidenceLow
	}
}

func canReplay(protocol models.WSProtocol, patterns []models.MessagePattern, duration time.Duration) bool {
	switch protocol {
	case models.ProtocolSocketIO, models.ProtocolSSE:
		return true
	default:
		return len(patterns) >= 1 && duration >= time.Second
	}
}

// groupMessagePatterns implements spec §4.12's (direction,type,event)
// grouping with frequency, average inter-arrival time, a schema example,
// and handshake/heartbeat classification.
func groupMessagePatterns(messages []models.WSMessage) []models.MessagePattern {
	type key struct {
		direction models.WSDirection
		typ       string
		event     string
	}
	type bucket struct {
		msgs []models.WSMessage
	}
	buckets := make(map[key]*bucket)
	var order []key

	for _, m := range messages {
		k := key{direction: m.Direction, typ: m.Type, event: m.Event}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{}
			buckets[k] = b
			order = append(order, k)
		}
		b.msgs = append(b.msgs, m)
	}

	var out []models.MessagePattern
	for _, k := range order {
		b := buckets[k]
		out = append(out, models.MessagePattern{
			Direction:     k.direction,
			Type:          k.typ,
			Event:         k.event,
			Frequency:     len(b.msgs),
			AvgIntervalMs: avgIntervalMs(b.msgs),
			SchemaExample: firstNonEmpty(b.msgs),
			IsHandshake:   isHandshake(k.typ, k.event),
			IsHeartbeat:   isHeartbeat(k.typ, k.event, b.msgs),
		})
	}
	return out
}

func avgIntervalMs(msgs []models.WSMessage) float64 {
	if len(msgs) < 2 {
		return 0
	}
	var total time.Duration
	for i := 1; i < len(msgs); i++ {
		total += msgs[i].Timestamp.Sub(msgs[i-1].Timestamp)
	}
	return float64(total.Milliseconds()) / float64(len(msgs)-1)
}

func firstNonEmpty(msgs []models.WSMessage) string {
	for _, m := range msgs {
		if m.Data != "" {
			return m.Data
		}
	}
	return ""
}

func isHandshake(typ, event string) bool {
	return typ == "open" || typ == "connect" || event == "connect"
}

func isHeartbeat(typ, event string, msgs []models.WSMessage) bool {
	if typ == "ping" || typ == "pong" {
		return true
	}
	if pingTokens[strings.ToLower(event)] {
		return true
	}
	for _, m := range msgs {
		data := strings.ToLower(strings.TrimSpace(m.Data))
		if pingTokens[data] {
			return true
		}
	}
	return false
}

// detectAuth implements spec §4.12's three auth-detection signals.
func detectAuth(conn models.WebSocketConnection) (required bool, method models.WSAuthMethod, param string) {
	if u, err := url.Parse(conn.URL); err == nil {
		q := u.Query()
		for _, p := range []string{"token", "auth"} {
			if q.Get(p) != "" {
				return true, models.WSAuthQuery, p
			}
		}
	}
	for k := range conn.Headers {
		lk := strings.ToLower(k)
		if lk == "authorization" {
			return true, models.WSAuthHeader, k
		}
		if lk == "cookie" {
			return true, models.WSAuthCookie, k
		}
	}
	for _, m := range conn.Messages {
		if authFieldRe.MatchString(m.Data) {
			return true, models.WSAuthToken, ""
		}
	}
	return false, "", ""
}

// scrubAuthParams removes auth-looking query parameters before the URL is
// used as a reusable pattern template.
func scrubAuthParams(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, p := range []string{"token", "auth", "access_token", "api_key", "apikey", "session"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func patternID(domain, endpoint string, protocol models.WSProtocol) string {
	sum := sha256.Sum256([]byte(domain + ":" + endpoint + ":" + string(protocol)))
	return hex.EncodeToString(sum[:])[:16]
}
