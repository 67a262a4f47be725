package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kittclouds/memoryd/internal/engine"
	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/metrics"
)

// requestDeadline is the implicit per-request deadline (spec §5: "each
// request carries an implicit deadline (default 30s)").
const requestDeadline = 30 * time.Second

// Dispatcher routes wire requests to Engine methods, enforcing per-method
// rate limits and the implicit request deadline.
type Dispatcher struct {
	eng     *engine.Engine
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDispatcher builds a Dispatcher with one token bucket per method,
// refilled per second at the given rates (spec §6). A method with no
// configured limit is left unbounded.
func NewDispatcher(eng *engine.Engine, log *zap.Logger, m *metrics.Metrics, rateLimits map[string]int) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	limiters := make(map[string]*rate.Limiter, len(rateLimits))
	for method, perSecond := range rateLimits {
		if perSecond <= 0 {
			continue
		}
		limiters[method] = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return &Dispatcher{eng: eng, log: log, metrics: m, limiters: limiters}
}

// Handle routes one decoded request to its handler and returns the response
// to write back. Notifications (nil ID) still run their side effect but the
// caller should not write the returned Response to the wire.
func (d *Dispatcher) Handle(parent context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	handler, ok := handlers[req.Method]
	if !ok {
		d.metrics.ObserveRequest(req.Method, "method_not_found")
		resp.Error = &WireError{Code: codeMethodNotFound, Message: "method not found", Kind: "MethodNotFound"}
		return resp
	}

	if limiter, ok := d.rateLimiter(req.Method); ok && !limiter.Allow() {
		d.metrics.ObserveRateLimited(req.Method)
		resp.Error = &WireError{Code: codeForKind(string(memerr.RateLimited)), Message: "rate limit exceeded", Kind: string(memerr.RateLimited)}
		return resp
	}

	if confirmRequired[req.Method] && !paramsConfirmed(req.Params) {
		resp.Error = &WireError{Code: codeForKind(string(memerr.InvalidParams)), Message: "this operation requires confirm:true", Kind: string(memerr.InvalidParams)}
		return resp
	}

	ctx, cancel := context.WithTimeout(parent, requestDeadline)
	defer cancel()

	result, err := handler(ctx, d.eng, req.Params)
	if err != nil {
		kind := memerr.KindOf(err)
		d.log.Warn("rpc handler error", zap.String("method", req.Method), zap.String("kind", string(kind)), zap.Error(err))
		d.metrics.ObserveRequest(req.Method, "error")
		if kind == memerr.StorageUnavailable {
			d.metrics.ObserveStorageError()
		}
		resp.Error = &WireError{Code: codeForKind(string(kind)), Message: humanMessage(err), Kind: string(kind)}
		return resp
	}

	d.metrics.ObserveRequest(req.Method, "ok")
	resp.Result = result
	return resp
}

func (d *Dispatcher) rateLimiter(method string) (*rate.Limiter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[method]
	return l, ok
}

// paramsConfirmed peeks at a raw params blob for a top-level confirm field
// without fully decoding the method's own params type.
func paramsConfirmed(raw json.RawMessage) bool {
	var probe struct {
		Confirm bool `json:"confirm"`
	}
	if len(raw) == 0 {
		return false
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.Confirm
}

// humanMessage returns a short, non-internal message safe to put on the
// wire (spec §7: "a short human-readable message plus the error kind"). The
// wrapped cause, if any, stays server-side in the log, never on the wire.
func humanMessage(err error) string {
	var e *memerr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "request failed"
}
