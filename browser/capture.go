package browser

import (
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/sift/models"
)

var consoleLevels = map[string]models.ConsoleLevel{
	"log":     models.ConsoleLog,
	"info":    models.ConsoleInfo,
	"warning": models.ConsoleWarn,
	"error":   models.ConsoleError,
	"debug":   models.ConsoleDebug,
}

// consoleRecorder collects console.* calls made by the page, for
// VerificationEngine and BrowseResult.Console.
type consoleRecorder struct {
	mu       sync.Mutex
	messages []models.ConsoleMessage
}

func (r *consoleRecorder) record(m models.ConsoleMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *consoleRecorder) snapshot() []models.ConsoleMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ConsoleMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// watchConsole registers a listener for console.* calls on a
// context-bound page. EachEvent's wait loop exits on its own once that
// context is canceled, so there is nothing further to stop explicitly.
func watchConsole(page *rod.Page) *consoleRecorder {
	rec := &consoleRecorder{}
	wait := page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		level, ok := consoleLevels[string(e.Type)]
		if !ok {
			level = models.ConsoleLog
		}
		var text string
		for _, arg := range e.Args {
			if arg.Value.Val() != nil {
				if text != "" {
					text += " "
				}
				text += arg.Value.String()
			} else if arg.Description != "" {
				if text != "" {
					text += " "
				}
				text += arg.Description
			}
		}
		rec.record(models.ConsoleMessage{
			Level:     level,
			Text:      text,
			Timestamp: time.Now(),
		})
	})
	go wait()
	return rec
}

// wsRecorder accumulates WebSocket/SSE frames observed on a page, grouped
// by the CDP RequestID CDP assigns per connection.
type wsRecorder struct {
	mu    sync.Mutex
	conns map[proto.NetworkRequestID]*models.WebSocketConnection
	order []proto.NetworkRequestID
}

func newWSRecorder() *wsRecorder {
	return &wsRecorder{conns: make(map[proto.NetworkRequestID]*models.WebSocketConnection)}
}

func (r *wsRecorder) ensure(id proto.NetworkRequestID, url string) *models.WebSocketConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		c = &models.WebSocketConnection{URL: url, Protocol: models.ProtocolWebSocket, ConnectedAt: time.Now()}
		r.conns[id] = c
		r.order = append(r.order, id)
	}
	return c
}

func (r *wsRecorder) append(id proto.NetworkRequestID, msg models.WSMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return
	}
	c.Messages = append(c.Messages, msg)
}

func (r *wsRecorder) close(id proto.NetworkRequestID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.ClosedAt = time.Now()
	}
}

func (r *wsRecorder) snapshot() []models.WebSocketConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.WebSocketConnection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.conns[id])
	}
	return out
}

// watchWebSockets registers listeners for the WebSocket lifecycle events
// CDP emits on a context-bound page, producing one WebSocketConnection per
// RequestID suitable for wspattern.Learn. All four wait loops exit on
// their own once the page's context is canceled.
func watchWebSockets(page *rod.Page) *wsRecorder {
	rec := newWSRecorder()

	wait := page.EachEvent(func(e *proto.NetworkWebSocketCreated) {
		rec.ensure(e.RequestID, e.URL)
	}, func(e *proto.NetworkWebSocketFrameSent) {
		rec.append(e.RequestID, models.WSMessage{
			Direction: models.DirectionSent,
			Data:      e.Response.PayloadData,
			Timestamp: time.Now(),
		})
	}, func(e *proto.NetworkWebSocketFrameReceived) {
		rec.append(e.RequestID, models.WSMessage{
			Direction: models.DirectionReceived,
			Data:      e.Response.PayloadData,
			Timestamp: time.Now(),
		})
	}, func(e *proto.NetworkWebSocketClosed) {
		rec.close(e.RequestID)
	})
	go wait()

	return rec
}
