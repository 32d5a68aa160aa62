package gateway

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danmuck/fibctl/internal/agent"
	"github.com/danmuck/fibctl/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

// StatusClientClosedRequest marks requests whose caller went away before the
// agent answered.
const StatusClientClosedRequest = 499

type addRouteRequest struct {
	Prefix  string `json:"prefix"`
	NextHop string `json:"next_hop"`
}

type syncRequest struct {
	Routes []agent.Route `json:"routes"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.Appeared).String(),
			"component": s.Name,
			"version":   version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     s.agent != nil,
			"uptime":    time.Since(s.Appeared).String(),
			"component": s.Name,
			"version":   version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")

	v1.GET("/ports", func(c *gin.Context) {
		ctx, cancel := s.callContext(c)
		defer cancel()
		ports, err := s.agent.PortStats(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		if ports == nil {
			ports = []agent.PortStat{}
		}
		c.JSON(http.StatusOK, gin.H{"ports": ports})
	})

	v1.GET("/routes", func(c *gin.Context) {
		ctx, cancel := s.callContext(c)
		defer cancel()
		routes, err := s.agent.RouteTable(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		if routes == nil {
			routes = []agent.Route{}
		}
		c.JSON(http.StatusOK, gin.H{"routes": routes})
	})

	v1.POST("/routes", func(c *gin.Context) {
		var req addRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if strings.TrimSpace(req.Prefix) == "" || strings.TrimSpace(req.NextHop) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prefix and next_hop are required"})
			return
		}
		ctx, cancel := s.callContext(c)
		defer cancel()
		if err := s.agent.AddRoute(ctx, req.Prefix, req.NextHop); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "created", "from": req.Prefix, "to": req.NextHop})
	})

	v1.DELETE("/routes", func(c *gin.Context) {
		prefix := strings.TrimSpace(c.Query("prefix"))
		if prefix == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prefix query parameter is required"})
			return
		}
		ctx, cancel := s.callContext(c)
		defer cancel()
		if err := s.agent.DeleteRoute(ctx, prefix); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.POST("/fib/sync", func(c *gin.Context) {
		var req syncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		ctx, cancel := s.callContext(c)
		defer cancel()
		if err := s.agent.SyncFib(ctx, req.Routes); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func (s *Server) callContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrInvalidPrefix), errors.Is(err, agent.ErrInvalidAddress):
		return http.StatusBadRequest
	case agent.IsRemote(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case protocol.IsTransport(err), protocol.IsProtocol(err), errors.Is(err, agent.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
