package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/userdb/userdb/internal/users"
)

// AppState holds all application services
type AppState struct {
	UserService    users.UserService
	Logger         *zap.Logger
	MetricsHandler http.Handler
	MetricsPath    string
	MaxRequestSize int64
}

// NewRouter builds the HTTP surface over the user service
func NewRouter(as *AppState) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(cors.Default())
	router.Use(RequestLogger(as.Logger))
	router.Use(gin.Recovery())
	if as.MaxRequestSize > 0 {
		router.Use(limitBody(as.MaxRequestSize))
	}

	router.GET("/health", healthCheck(as))

	if as.MetricsHandler != nil && as.MetricsPath != "" {
		router.GET(as.MetricsPath, gin.WrapH(as.MetricsHandler))
	}

	v1 := router.Group("/v1")
	{
		u := v1.Group("/users")
		{
			u.POST("", addUser(as))
			u.GET("", listUsers(as))
			u.GET("/search", searchUsers(as))
			u.PUT("/:id", updateUser(as))
			u.DELETE("/:identifier", deleteUser(as))
		}
	}

	return router
}

// RequestLogger logs every request with a generated request id
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		logger.Info("Request handled",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote_addr", c.Request.RemoteAddr))
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// Run serves addr until SIGINT or SIGTERM, then shuts the server down and closes the service.
func Run(as *AppState, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: NewRouter(as),
	}

	done := setupSignalHandler(as, server)

	as.Logger.Info("Starting userdb server", zap.String("address", addr))

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		as.UserService.Close()
		return err
	}

	<-done
	as.Logger.Info("Server shutdown complete")
	return nil
}

func setupSignalHandler(as *AppState, server *http.Server) chan struct{} {
	done := make(chan struct{}, 1)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalCh

		as.Logger.Info("Shutting down server...")

		// Create context with timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			as.Logger.Error("Error during server shutdown", zap.Error(err))
		}

		if err := as.UserService.Close(); err != nil {
			as.Logger.Error("Error closing user store", zap.Error(err))
		}

		done <- struct{}{}
	}()

	return done
}
