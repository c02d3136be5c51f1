// Package server provides the facilitator's HTTP binding: a thin gin layer
// around the Verifier/Settler/SupportedProvider surface, matching the
// example facilitator's endpoint set (GET /supported, GET/POST /verify,
// POST /settle) plus health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	facilitator "github.com/awesome-doge/settlement-core/go"
)

// Facilitator is the subset of the root facilitator type the server drives.
// Declared here, at the point of use, rather than imported as a concrete
// type, so the server can be tested against a fake.
type Facilitator interface {
	Verify(ctx context.Context, payload facilitator.PaymentPayload, requirements facilitator.PaymentRequirements) (*facilitator.VerifyResponse, error)
	Settle(ctx context.Context, payload facilitator.PaymentPayload, requirements facilitator.PaymentRequirements) (*facilitator.SettleResponse, error)
	GetSupported() facilitator.SupportedResponse
}

// Server is the facilitator's HTTP server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	facilitator Facilitator
	logger      *zap.Logger
	port        string
}

// New builds a Server. reg is the Prometheus registry the audit sink's
// PrometheusSink was constructed against; it is exposed on GET /metrics.
func New(f Facilitator, logger *zap.Logger, reg *prometheus.Registry, port string, production bool) *Server {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	s := &Server{router: router, facilitator: f, logger: logger, port: port}

	s.setupMiddleware()
	s.setupRoutes(reg)

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(CORSMiddleware())
}

func (s *Server) setupRoutes(reg *prometheus.Registry) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	s.router.GET("/supported", s.handleSupported)
	s.router.GET("/verify", s.handleVerifyDescriptor)
	s.router.POST("/verify", s.handleVerify)
	s.router.POST("/settle", s.handleSettle)
}

// Run starts the HTTP server and blocks until it receives SIGINT/SIGTERM,
// then drains in-flight requests before returning.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("facilitator listening", zap.String("port", s.port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	s.logger.Info("shut down cleanly")
	return nil
}
