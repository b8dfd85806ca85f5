package browser

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/sift/models"
)

// resourceTypeProto maps the human-readable resource type names used in
// Config.BlockedResourceTypes to Rod's protocol resource types.
var resourceTypeProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// networkRecorder accumulates captured exchanges across a single page's
// lifetime under a mutex, since the hijack handler runs on its own
// goroutine per request.
type networkRecorder struct {
	mu       sync.Mutex
	requests []models.NetworkRequest
}

func (r *networkRecorder) record(req models.NetworkRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *networkRecorder) snapshot() []models.NetworkRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NetworkRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// setupHijack installs a request interceptor that blocks the configured
// resource types and, when capture is true, records every request/response
// pair it sees (whether blocked or allowed). Returns nil (no hijack
// installed) only when there is nothing to block and nothing to capture.
func setupHijack(page *rod.Page, blockedTypes []string, capture bool) (*rod.HijackRouter, *networkRecorder) {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypeProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !capture {
		return nil, nil
	}

	rec := &networkRecorder{}
	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		start := time.Now()

		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			if capture {
				rec.record(models.NetworkRequest{
					URL:            ctx.Request.URL().String(),
					Method:         ctx.Request.Method(),
					TimestampStart: start,
				})
			}
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if !capture {
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}

		if err := ctx.LoadResponse(http.DefaultClient, true); err != nil {
			rec.record(models.NetworkRequest{
				URL:            ctx.Request.URL().String(),
				Method:         ctx.Request.Method(),
				TimestampStart: start,
				DurationMs:     time.Since(start).Milliseconds(),
			})
			return
		}

		reqHeaders := make(map[string]string, len(ctx.Request.Headers()))
		for k, v := range ctx.Request.Headers() {
			reqHeaders[k] = v.String()
		}
		respHeaders := make(map[string]string, len(ctx.Response.Headers()))
		for k, v := range ctx.Response.Headers() {
			respHeaders[k] = v.String()
		}

		rec.record(models.NetworkRequest{
			URL:             ctx.Request.URL().String(),
			Method:          ctx.Request.Method(),
			Status:          ctx.Response.Payload().ResponseCode,
			ContentType:     respHeaders["Content-Type"],
			RequestHeaders:  reqHeaders,
			ResponseHeaders: respHeaders,
			ResponseBody:    []byte(ctx.Response.Body()),
			TimestampStart:  start,
			DurationMs:      time.Since(start).Milliseconds(),
		})
	})

	go router.Run()
	return router, rec
}
