// Package server provides the public entry point for initializing the
// resolution engine's HTTP facade.
//
// This package lives in pkg/ (not internal/) so that alternate front ends
// (a CLI, a second HTTP surface with different middleware) can compose the
// same engine without duplicating wiring.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fathomly/resolver-engine/internal/api"
	"github.com/fathomly/resolver-engine/internal/api/handlers"
	resolverauth "github.com/fathomly/resolver-engine/internal/auth"
	"github.com/fathomly/resolver-engine/internal/config"
	"github.com/fathomly/resolver-engine/internal/dht"
	"github.com/fathomly/resolver-engine/internal/engine"
	"github.com/fathomly/resolver-engine/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Config is the public configuration for the resolution engine server.
type Config struct {
	Port         int
	Version      string
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Server holds the initialized resolution engine and its HTTP facade.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Engine is the resolution engine (C1-C9) backing Handler.
	Engine *engine.Engine

	// Handlers is the HTTP handler collection wired to Engine.
	Handlers *handlers.Handlers

	// AuthChain is the pluggable authentication provider chain.
	AuthChain *resolverauth.ProviderChain

	// DHT is the local distributed pattern network node, nil unless
	// RESOLVER_DHT_ENABLED is set.
	DHT *dht.Node

	// Config is the server configuration.
	Config *Config

	// Port is the port the server should listen on.
	Port int

	// shutdownTelemetry flushes the telemetry exporter on shutdown.
	shutdownTelemetry func(context.Context) error

	// bootstrapPeers are pinged once the DHT node starts serving.
	bootstrapPeers []string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := config.Load()
	return &Config{
		Port:         cfg.Port,
		Version:      cfg.Version,
		OTELEnabled:  cfg.Telemetry.Enabled,
		OTELEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	}
}

// New initializes the resolution engine and its HTTP facade using
// environment-derived configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the engine with an explicit public configuration.
func NewWithConfig(ctx context.Context, pubCfg *Config) (*Server, error) {
	cfg := config.Load()
	if pubCfg.Port > 0 {
		cfg.Port = pubCfg.Port
	}

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	return buildServer(ctx, cfg, pubCfg, shutdown)
}

// buildServer is the shared constructor that wires the engine, auth chain,
// and HTTP router.
func buildServer(ctx context.Context, cfg *config.Config, pubCfg *Config, shutdown func(context.Context) error) (*Server, error) {
	var node *dht.Node
	opts := []engine.Option{}

	if cfg.DHT.Enabled {
		var err error
		node, err = dht.NewNode(cfg.DHT.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("init dht node: %w", err)
		}
		opts = append(opts, engine.WithDHT(node))
		log.Info().Str("addr", cfg.DHT.ListenAddr).Msg("dht node initialized")
	}

	eng, err := engine.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}

	authChain := resolverauth.NewProviderChain()

	apiKeyProvider := resolverauth.NewAPIKeyProvider()
	if apiKeyProvider.Enabled() {
		authChain.RegisterProvider(apiKeyProvider)
	}
	svcAcctProvider := resolverauth.NewServiceAccountProvider()
	if svcAcctProvider.Enabled() {
		authChain.RegisterProvider(svcAcctProvider)
	}

	h := handlers.New(eng)
	router := api.NewRouter(cfg, h, authChain)

	return &Server{
		Handler:           router,
		Engine:            eng,
		Handlers:          h,
		AuthChain:         authChain,
		DHT:               node,
		Config:            pubCfg,
		Port:              cfg.Port,
		shutdownTelemetry: shutdown,
		bootstrapPeers:    cfg.DHT.BootstrapPeers,
	}, nil
}

// Serve starts the DHT node's UDP listener (if configured) and bootstraps
// it against the configured peer addresses. Blocks until ctx is canceled.
// Callers typically run this in its own goroutine alongside the HTTP
// listener.
func (s *Server) Serve(ctx context.Context) {
	if s.DHT == nil {
		return
	}
	go s.DHT.Serve(ctx)
	if len(s.bootstrapPeers) > 0 {
		s.Engine.Bootstrap(ctx, s.bootstrapPeers)
	}
	<-ctx.Done()
}

// Shutdown closes the DHT node (if any) and flushes telemetry. Should be
// called on graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.DHT != nil {
		if err := s.DHT.Close(); err != nil {
			log.Warn().Err(err).Msg("dht node close failed")
		}
	}
	if s.shutdownTelemetry != nil {
		return s.shutdownTelemetry(ctx)
	}
	return nil
}
