package datasource

import (
	"time"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/circuitbreaker"
	"github.com/whale-scanner/internal/errors"
	"github.com/whale-scanner/internal/ratelimit"
	"github.com/whale-scanner/internal/types"
)

// Factory builds data source clients for the backend mode resolved once at
// startup. Every NewClient call returns a fresh client so each scan owns
// its connection lifecycle.
type Factory struct {
	cfg      FactoryConfig
	resolved types.DataSource

	// One breaker shared by every hybrid client, so bridge failures seen
	// during one scan still short-circuit the next
	breaker *circuitbreaker.CircuitBreaker
}

// FactoryConfig carries everything any backend might need. Unused fields
// for the resolved mode are ignored.
type FactoryConfig struct {
	// Mode selects the backend: "auto", "protocol", or "rest"
	Mode string
	// DeployEnv forces REST when set to "serverless"; a websocket bridge
	// cannot live in a request-scoped runtime
	DeployEnv string
	// EnableFallback makes auto mode build hybrid clients
	EnableFallback bool

	Registry *chains.Registry

	// Protocol backend
	ProtocolURL    string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration

	// REST backend
	ExplorerAPIKey    string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	Budget            *ratelimit.RequestBudget

	// Hybrid breaker; nil uses defaults
	BreakerConfig *circuitbreaker.Config
}

// NewFactory resolves the backend mode and validates the configuration it
// needs. Resolution happens exactly once; individual scans never flip modes.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Registry == nil {
		return nil, errors.NewConfigurationError("chain registry is required")
	}

	resolved := resolveSource(cfg.Mode, cfg.DeployEnv, cfg.EnableFallback)
	if resolved != types.SourceREST && cfg.ProtocolURL == "" {
		return nil, errors.NewConfigurationError("PROTOCOL_BRIDGE_URL is required for mode " + string(resolved))
	}

	f := &Factory{cfg: cfg, resolved: resolved}
	if resolved == types.SourceHybrid {
		f.breaker = NewProtocolBreaker(cfg.BreakerConfig)
	}
	return f, nil
}

// resolveSource maps configuration onto the backend that will serve scans
func resolveSource(mode, deployEnv string, fallback bool) types.DataSource {
	switch mode {
	case "rest":
		return types.SourceREST
	case "protocol":
		return types.SourceProtocol
	default: // auto
		if deployEnv == "serverless" {
			return types.SourceREST
		}
		if fallback {
			return types.SourceHybrid
		}
		return types.SourceProtocol
	}
}

// Source returns the resolved backend mode
func (f *Factory) Source() types.DataSource {
	return f.resolved
}

// BreakerStats exposes the shared protocol breaker state for health
// reporting. Nil outside hybrid mode.
func (f *Factory) BreakerStats() *circuitbreaker.Stats {
	if f.breaker == nil {
		return nil
	}
	return f.breaker.GetStats()
}

// NewClient builds a fresh, unconnected client for the resolved mode.
// Callers own the Connect/Disconnect lifecycle.
func (f *Factory) NewClient() Client {
	switch f.resolved {
	case types.SourceREST:
		return f.newRESTClient()
	case types.SourceProtocol:
		return f.newProtocolClient()
	default:
		return NewHybridClient(f.newProtocolClient(), f.newRESTClient(), f.breaker)
	}
}

func (f *Factory) newRESTClient() *RESTClient {
	return NewRESTClient(RESTClientConfig{
		Registry:          f.cfg.Registry,
		APIKey:            f.cfg.ExplorerAPIKey,
		RequestTimeout:    f.cfg.RequestTimeout,
		RequestsPerSecond: f.cfg.RequestsPerSecond,
		Burst:             f.cfg.Burst,
		MaxRetries:        f.cfg.MaxRetries,
		Budget:            f.cfg.Budget,
	})
}

func (f *Factory) newProtocolClient() *ProtocolClient {
	return NewProtocolClient(ProtocolClientConfig{
		Registry:       f.cfg.Registry,
		URL:            f.cfg.ProtocolURL,
		ConnectTimeout: f.cfg.ConnectTimeout,
		CallTimeout:    f.cfg.CallTimeout,
	})
}
