// Package api wires the gin HTTP surface: the websocket upgrade route, the
// read-only REST mirror of session state, the loopback-only notification
// hook, swagger docs, and health. Generalized from the teacher's
// src/api/router.go (CORS/no-cache/logrus middleware stack, swagger
// mounting, HEAD-probe routes) onto the design's much smaller REST
// surface — the bulk of the protocol lives on the websocket channel, not
// in gin routes.
package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/termhub/termhubd/docs"
	"github.com/termhub/termhubd/internal/connection"
	"github.com/termhub/termhubd/internal/identity"
	"github.com/termhub/termhubd/internal/notify"
	"github.com/termhub/termhubd/internal/session"
)

// Deps bundles every collaborator the REST surface needs, beyond what the
// websocket handler already carries in connection.Deps.
type Deps struct {
	Connection connection.Deps
	Manager    *session.Manager
	Bus        *notify.Bus
	Resolver   identity.Resolver
}

// SetupRouter configures every route. disableRequestLogging skips the
// logrus access-log middleware, matching the teacher's test-suite knob.
func SetupRouter(deps Deps, disableRequestLogging bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(noCacheMiddleware())
	if !disableRequestLogging {
		r.Use(logrusMiddleware())
	}

	r.GET("/swagger", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/ws", func(c *gin.Context) {
		connection.Serve(c.Writer, c.Request, deps.Connection)
	})

	r.GET("/health", func(c *gin.Context) {
		handleHealth(c, deps)
	})

	api := r.Group("/api")
	{
		api.GET("/sessions", func(c *gin.Context) {
			handleListSessions(c, deps)
		})
		api.POST("/notify/:sessionId/:kind", func(c *gin.Context) {
			handleNotifyHook(c, deps)
		})
	}

	return r
}

// handleHealth reports liveness, live session count, live connection
// count, and the active identity mode. There is no health.go in the teacher
// to generalize from at the route level; the handler shape (plain JSON
// status map) follows the teacher's own SystemHandler.HandleHealth.
func handleHealth(c *gin.Context, deps Deps) {
	mode := "disabled"
	if _, ok := deps.Resolver.(*identity.AllowedUsersResolver); ok {
		mode = "allowed-users"
	}
	sessionCount := 0
	if views, err := deps.Manager.List(); err == nil {
		for _, v := range views {
			if v.Attachable {
				sessionCount++
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"sessionCount":    sessionCount,
		"connectionCount": deps.Connection.Registry.Count(),
		"identityMode":    mode,
	})
}

func handleListSessions(c *gin.Context, deps Deps) {
	views, err := deps.Manager.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]sessionView, 0, len(views))
	for _, v := range views {
		out = append(out, sessionView{
			ID: v.ID, Name: v.Name, Shell: v.Shell, Cwd: v.Cwd,
			Status: string(v.Status), Attachable: v.Attachable,
			CategoryID: v.CategoryID, SortOrder: v.SortOrder,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

type sessionView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Shell      string  `json:"shell"`
	Cwd        string  `json:"cwd"`
	Status     string  `json:"status"`
	Attachable bool    `json:"attachable"`
	CategoryID *string `json:"categoryId"`
	SortOrder  int     `json:"sortOrder"`
}

// handleNotifyHook publishes a notification for a session, used by
// wrapper scripts (shell-prompt hooks) running on the same host as the
// server. It is restricted to loopback callers rather than gated by the
// identity collaborator: a prompt hook runs as a local process, not a
// browser session, so it has no websocket-style principal to present.
func handleNotifyHook(c *gin.Context, deps Deps) {
	if !isLoopback(c.Request) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	kind, err := notify.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deps.Bus.Publish(c.Param("sessionId"), kind)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Termhub-User, X-Termhub-Display-Name")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Writer.Header().Set("Pragma", "no-cache")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}

func logrusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		start := time.Now()
		c.Next()
		latency := int(math.Ceil(float64(time.Since(start).Nanoseconds()) / 1e6))
		status := c.Writer.Status()

		msg := fmt.Sprintf("%s %s %d %dms", c.Request.Method, path, status, latency)
		switch {
		case status >= http.StatusInternalServerError:
			logrus.Error(msg)
		case status >= http.StatusBadRequest:
			logrus.Warn(msg)
		default:
			logrus.Info(msg)
		}
	}
}
