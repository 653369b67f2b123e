// Package server assembles the chat service: hub, store, protocol handlers,
// optional Redis bridge, and the HTTP/WebSocket listener.
package server

import (
	"github.com/gofiber/fiber/v3"
	"github.com/relaychat/server/config"
	"github.com/relaychat/server/src/bridge"
	"github.com/relaychat/server/src/chat"
	"github.com/relaychat/server/src/directory"
	"github.com/relaychat/server/src/hub"
	"github.com/relaychat/server/src/store"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server owns the in-memory chat state and the listener serving it.
// Constructed once per process; no ambient storage.
type Server struct {
	cfg    *config.Config
	hub    *hub.Hub
	store  *store.Store
	chat   *chat.Service
	dir    *directory.Directory
	bridge bridge.Bridge
	logger zerolog.Logger

	httpSrv *fasthttp.Server
}

// New builds a server from configuration. Nothing runs until Start.
func New(cfg *config.Config, logger zerolog.Logger) *Server {
	h := hub.New(logger)
	st := store.New(cfg.MaxHistory)

	return &Server{
		cfg:    cfg,
		hub:    h,
		store:  st,
		chat:   chat.New(h, st, logger),
		dir:    directory.Load(cfg.UsersFile, logger),
		logger: logger,
	}
}

// Hub exposes the underlying hub, mainly for tests.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Chat exposes the protocol service, mainly for tests.
func (s *Server) Chat() *chat.Service { return s.chat }

// Start runs the hub event loop, connects the optional Redis bridge, and
// blocks serving HTTP and WebSocket traffic.
func (s *Server) Start() error {
	go s.hub.Run()
	s.initBridge()

	app := fiber.New()
	s.registerRoutes(app)

	// The WebSocket upgrade needs *fasthttp.RequestCtx, which Fiber v3 does
	// not expose, so /ws is routed ahead of the fiber handler.
	fiberHandler := app.Handler()
	wsHandler := s.websocketHandler()

	s.httpSrv = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				wsHandler(ctx)
				return
			}
			fiberHandler(ctx)
		},
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
	}

	s.logger.Info().Str("addr", s.cfg.Addr).Msg("chat server listening")
	return s.httpSrv.ListenAndServe(s.cfg.Addr)
}

// initBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the server runs standalone.
func (s *Server) initBridge() {
	cfg := bridge.RedisConfigFromEnv()
	rb := bridge.NewRedisBridge(cfg, s.hub, s.logger)

	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}

	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Stop shuts down the listener, bridge, and hub event loop.
func (s *Server) Stop() error {
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	s.hub.Stop()
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown()
	}
	return nil
}
