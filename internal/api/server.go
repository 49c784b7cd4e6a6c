// Package api is the thin gin-gonic/gin router exposing the three inbound
// protocol surfaces (Claude Messages, Gemini generateContent, OpenAI Chat
// Completions + Responses) plus the OAuth start/callback routes, grounded
// on the teacher's internal/api/server.go route-group-per-protocol layout.
// Admin CRUD UI is out of scope per spec §1 and is not built here.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/gateway"
	"github.com/module-gw/gproxy/internal/logging"
	"github.com/module-gw/gproxy/internal/oauth"
)

// Routes names the routes a Server exposes over /v1, /v1beta, and /v1
// responses, each bound to one configured provider in the gateway.
type Routes struct {
	Claude     string // serves /v1/messages, /v1/messages/count_tokens
	Gemini     string // serves /v1beta/models/:action
	OpenAIChat string // serves /v1/chat/completions
	OpenAIResp string // serves /v1/responses
}

// Server is the HTTP front door: one gin.Engine wired to a gateway.Gateway
// and an oauth.Orchestrator.
type Server struct {
	engine *gin.Engine
	server *http.Server
}

// NewServer builds the engine, registers every route group, and returns a
// Server ready for Start.
func NewServer(port int, debug bool, gw *gateway.Gateway, routes Routes, apiKey string, orch *oauth.Orchestrator, tokenSink TokenSink) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware())

	v1 := engine.Group("/v1")
	v1.Use(AuthMiddleware(apiKey))
	{
		v1.GET("/models", unifiedModelsHandler(gw, routes.OpenAIChat))
		v1.GET("/models/:model", modelsGetHandler(gw, routes.OpenAIChat, constant.OpenAIModelsGet))
		v1.POST("/chat/completions", chatCompletionsHandler(gw, routes.OpenAIChat))
		v1.POST("/responses", responsesHandler(gw, routes.OpenAIResp))
		v1.POST("/messages", dualModeHandler(gw, routes.Claude, constant.ClaudeMessages, constant.ClaudeMessagesStream))
		v1.POST("/messages/count_tokens", dispatchNonStream(gw, routes.Claude, constant.ClaudeCountTokens))
	}

	v1beta := engine.Group("/v1beta")
	v1beta.Use(AuthMiddleware(apiKey))
	{
		v1beta.GET("/models", modelsListHandler(gw, routes.Gemini, constant.GeminiModelsList))
		v1beta.POST("/models/:action", geminiActionHandler(gw, routes.Gemini))
		v1beta.GET("/models/:action", geminiModelsGetHandler(gw, routes.Gemini))
	}

	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "gproxy gateway",
			"endpoints": []string{
				"POST /v1/chat/completions",
				"POST /v1/responses",
				"POST /v1/messages",
				"POST /v1beta/models/:action",
			},
		})
	})

	if orch != nil {
		registerOAuthRoutes(engine, orch, tokenSink)
	}

	return &Server{
		engine: engine,
		server: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: engine},
	}
}

// chatCompletionsHandler picks the streaming or buffered handler by
// inspecting the "stream" field, matching the teacher's OpenAI handler's
// single-endpoint dual-mode shape.
func chatCompletionsHandler(gw *gateway.Gateway, routeName string) gin.HandlerFunc {
	return dualModeHandler(gw, routeName, constant.OpenAIChatOp, constant.OpenAIChatStream)
}

func responsesHandler(gw *gateway.Gateway, routeName string) gin.HandlerFunc {
	return dualModeHandler(gw, routeName, constant.OpenAIResponses, constant.OpenAIResponsesStream)
}

// Start begins serving; it blocks until Stop is called or the listener
// fails.
func (s *Server) Start() error {
	log.Debugf("starting gateway HTTP server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
