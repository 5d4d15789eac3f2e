package main

import (
	"context"
	"fmt"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "joker-match-queue-server"

type Server struct {
	application   *Application
	server        *http.Server
	env           *infra.Env
	loggerFactory *infra.LoggerFactory
	logger        *zap.SugaredLogger
}

func ProvideServer(application *Application, env *infra.Env, loggerFactory *infra.LoggerFactory) *Server {
	logger := loggerFactory.Create("Server").Sugar()

	return &Server{
		application: application,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%v", env.ServerPort),
			Handler: newEcho(application, logger),
			//ReadTimeout: 30 * time.Second, // customize http.Server timeouts
		},
		env:           env,
		loggerFactory: loggerFactory,
		logger:        logger,
	}
}

func newEcho(application *Application, logger *zap.SugaredLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogRequestID: true,
		LogStatus:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Infof("%v %v id[%v] status[%v] latency[%vms]", v.Method, v.URI, v.RequestID, v.Status, v.Latency.Milliseconds())
			return nil
		},
	}))

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Hello, World!\n")
	})

	e.PUT("/debug", func(c echo.Context) error {
		infra.LoggerLevel.SetLevel(zapcore.DebugLevel)
		logger.Info("debug logging enabled")
		return c.NoContent(http.StatusOK)
	})

	e.DELETE("/debug", func(c echo.Context) error {
		infra.LoggerLevel.SetLevel(zapcore.InfoLevel)
		logger.Info("debug logging disabled")
		return c.NoContent(http.StatusOK)
	})

	e.POST("/search", application.HandleStartSearch)
	e.GET("/search", application.HandlePollSearch)
	e.DELETE("/search", application.HandleStopSearch)
	e.POST("/calls/:roomId/end", application.HandleEndCall)
	e.POST("/heartbeat", application.HandleHeartbeat)
	e.GET("/stats", application.HandleStats)
	e.GET("/ws", application.HandleWs)

	return e
}

// Run blocks until ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	shutdownTracing, err := infra.SetupTracing(ctx, s.env, serviceName)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	s.logger.Infof("server running application")
	s.application.Run(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Infof("server shutting down")
		if err := s.server.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("shutdown failed %v", err)
		}
	}()

	s.logger.Infof("server starts listening on port[%v]", s.env.ServerPort)
	err = s.server.ListenAndServe()

	if err := shutdownTracing(context.Background()); err != nil {
		s.logger.Errorf("shutdown tracing failed %v", err)
	}
	s.loggerFactory.Sync()

	if err != http.ErrServerClosed {
		return err
	}
	return nil
}
