// Package jsapi is the authenticated gateway to the host's wx capabilities.
//
// Every capability call first makes sure the page has completed the signing and
// configure handshake, then marshals its options, invokes the host by name and
// classifies the envelope the host answers with.
package jsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redforks/wx-js-sdk/internal/host"
	"github.com/redforks/wx-js-sdk/internal/signing"
)

// Signer is satisfied by *signing.Client.
type Signer interface {
	SignCurrentURL(ctx context.Context) (signing.Result, error)
}

type Options struct {
	Settings
	AwaitHandshake bool
	Metrics        *Metrics
	Logger         *slog.Logger
}

type Gateway struct {
	signer    Signer
	host      host.Host
	lifecycle *Lifecycle
	metrics   *Metrics
	logger    *slog.Logger

	mu       sync.RWMutex
	settings Settings
}

func New(signer Signer, h host.Host, opts Options) *Gateway {
	settings := opts.Settings
	if settings.JSAPIList == nil {
		settings.JSAPIList = DefaultJSAPIList
	}
	if settings.OpenTagList == nil {
		settings.OpenTagList = DefaultOpenTagList
	}
	settings.JSAPIList = cloneStrings(settings.JSAPIList)
	settings.OpenTagList = cloneStrings(settings.OpenTagList)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		signer:    signer,
		host:      h,
		lifecycle: NewLifecycle(opts.AwaitHandshake),
		metrics:   opts.Metrics,
		logger:    logger,
		settings:  settings,
	}
}

func (g *Gateway) State() InitState {
	return g.lifecycle.State()
}

// EnsureConfigured runs the handshake once per gateway. Once it has succeeded
// this returns immediately without touching the network or the host.
func (g *Gateway) EnsureConfigured(ctx context.Context) error {
	return g.lifecycle.Ensure(ctx, g.handshake)
}

// Reconfigure runs the handshake unconditionally, whatever the lifecycle state.
// A non-nil jsAPIList replaces the capability list for this and later handshakes.
func (g *Gateway) Reconfigure(ctx context.Context, jsAPIList []string) error {
	if jsAPIList != nil {
		g.mu.Lock()
		g.settings.JSAPIList = cloneStrings(jsAPIList)
		g.mu.Unlock()
	}
	return g.handshake(ctx)
}

func (g *Gateway) handshake(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		g.metrics.observeHandshake(err)
		if err != nil {
			g.logger.Error("jsapi handshake failed", "kind", Kind(err), "error", err, "latency_ms", time.Since(started).Milliseconds())
		}
	}()

	sig, err := g.signer.SignCurrentURL(ctx)
	if err != nil {
		return err
	}
	g.mu.RLock()
	creds := newCredentials(g.settings, sig)
	g.mu.RUnlock()

	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("%w: config: %v", ErrSerialization, err)
	}
	if _, err := g.host.Invoke(ctx, host.CapConfig, payload); err != nil {
		return configFailure(err)
	}
	g.logger.Info("jsapi configured", "app_id", creds.AppID, "apis", len(creds.JSAPIList), "latency_ms", time.Since(started).Milliseconds())
	return nil
}

// Call is the generic capability path: configure, marshal, invoke once, classify.
// API failures and cancellations come back as the Outcome kind, not as errors.
func Call[Req, Resp any](ctx context.Context, g *Gateway, capability string, req Req) (Outcome[Resp], error) {
	if err := g.EnsureConfigured(ctx); err != nil {
		g.metrics.observeUnreached(capability, Kind(err))
		return Outcome[Resp]{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Outcome[Resp]{}, fmt.Errorf("%w: %s: %v", ErrSerialization, capability, err)
	}

	callID := uuid.NewString()
	started := time.Now()
	raw, err := g.host.Invoke(ctx, capability, payload)
	if err != nil {
		err = &TransportError{Capability: capability, Err: err}
		g.finishCall(callID, capability, started, "", err)
		return Outcome[Resp]{}, err
	}
	out, err := Classify[Resp](raw)
	g.finishCall(callID, capability, started, out.Kind.String(), err)
	return out, err
}

func (g *Gateway) finishCall(callID, capability string, started time.Time, outcome string, err error) {
	elapsed := time.Since(started)
	if err != nil {
		g.metrics.observeCall(capability, Kind(err), elapsed)
		g.logger.Error("jsapi call failed", "call_id", callID, "capability", capability, "kind", Kind(err), "error", err, "latency_ms", elapsed.Milliseconds())
		return
	}
	g.metrics.observeCall(capability, outcome, elapsed)
	g.logger.Info("jsapi call", "call_id", callID, "capability", capability, "outcome", outcome, "latency_ms", elapsed.Milliseconds())
}
