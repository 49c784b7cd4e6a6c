package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/gateway"
)

// unifiedModelsHandler serves GET /v1/models, picking the response shape
// by User-Agent the way the teacher's unifiedModelsHandler
// (internal/api/server.go) routes claude-cli traffic to the Claude
// handler and everything else to OpenAI's.
func unifiedModelsHandler(gw *gateway.Gateway, routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := gw.Route(routeName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown route", "type": "invalid_request_error"}})
			return
		}
		op := constant.OpenAIModelsList
		if strings.HasPrefix(c.GetHeader("User-Agent"), "claude-cli") {
			op = constant.ClaudeModelsList
		}
		out, err := gw.HandleRequest(c.Request.Context(), route, op, "", nil)
		if err != nil {
			errorJSON(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", out)
	}
}
