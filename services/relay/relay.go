// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relay provides the retrieval-augmented streaming chat service.
//
// The relay accepts chat messages over a websocket, grounds them with
// documents retrieved from Weaviate, streams the model's response back
// chunk by chunk, and detects completion by watching the response buffer
// for quiescence. Conversation identity and history live in a local
// Badger store with per-key TTLs.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianRelay/services/llm"
	"github.com/AleutianAI/AleutianRelay/services/relay/conversation"
	"github.com/AleutianAI/AleutianRelay/services/relay/rag"
	"github.com/AleutianAI/AleutianRelay/services/relay/routes"
	"github.com/AleutianAI/AleutianRelay/services/relay/session"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the relay service.
//
// # Description
//
// Service abstracts the relay lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds relay configuration options.
//
// All fields are optional except DeepSeekAPIKey; defaults are applied
// by New().
type Config struct {
	// Port is the HTTP server port. Default: 12220
	Port int

	// StorePath is the Badger data directory for conversation state.
	// Default: "./data/relay"
	StorePath string

	// InMemoryStore runs Badger without persistence. Conversation state
	// is lost on restart; intended for tests and demos.
	InMemoryStore bool

	// WeaviateURL is the Weaviate vector database URL.
	// If empty, retrieval is disabled and responses are ungrounded.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// DeepSeekAPIKey authenticates against the generation backend.
	// Required.
	DeepSeekAPIKey string

	// DeepSeekBaseURL overrides the generation endpoint. Any
	// OpenAI-compatible server works. Default: the hosted DeepSeek API.
	DeepSeekBaseURL string

	// DeepSeekModel is the chat model name. Default: "deepseek-chat"
	DeepSeekModel string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string

	// Watcher overrides the completion detection schedule. Zero fields
	// use the production defaults.
	Watcher session.WatcherConfig
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
type service struct {
	config        Config
	router        *gin.Engine
	store         storage.Store
	manager       *session.Manager
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a relay Service from cfg.
//
// # Description
//
// New initializes all relay components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Opens the Badger conversation store
//  4. Creates the Weaviate searcher if a URL is configured
//  5. Creates the DeepSeek streaming client
//  6. Wires the session manager and HTTP routes
//
// # Outputs
//
//   - Service: Ready-to-run relay service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	searcher, err := s.initSearcher()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize retrieval: %w", err)
	}

	generator, err := llm.NewDeepSeekClient(llm.DeepSeekConfig{
		APIKey:  s.config.DeepSeekAPIKey,
		BaseURL: s.config.DeepSeekBaseURL,
		Model:   s.config.DeepSeekModel,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize generation client: %w", err)
	}

	s.manager = session.NewManager(
		conversation.NewResolver(s.store),
		conversation.NewHistoryStore(s.store),
		searcher,
		generator,
		session.Config{Watcher: s.config.Watcher},
	)

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting relay server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12220
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/relay"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("relay-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the Badger conversation store.
func (s *service) initStore() error {
	var err error
	if s.config.InMemoryStore {
		s.store, err = storage.OpenInMemory()
	} else {
		s.store, err = storage.Open(storage.DefaultConfig(s.config.StorePath))
	}
	if err != nil {
		return err
	}

	slog.Info("Conversation store opened",
		"path", s.config.StorePath,
		"in_memory", s.config.InMemoryStore)
	return nil
}

// initSearcher creates the Weaviate searcher, or a no-op searcher when
// no URL is configured.
func (s *service) initSearcher() (rag.Searcher, error) {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, running without retrieval")
		return rag.NewNoopSearcher(), nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return rag.NewWeaviateSearcher(client), nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("relay-service"))

	routes.SetupRoutes(s.router, s.manager)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Conversation store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
