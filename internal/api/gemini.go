package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/gateway"
)

// geminiActionHandler dispatches Gemini's single-path-segment
// "{model}:{method}" convention (e.g. "gemini-2.5-pro:streamGenerateContent")
// to the right Op, matching the teacher's GeminiHandler's action split.
func geminiActionHandler(gw *gateway.Gateway, routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := c.Param("action")
		action = strings.TrimPrefix(action, "/")
		parts := strings.SplitN(action, ":", 2)
		if len(parts) != 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "malformed action segment", "type": "invalid_request_error"}})
			return
		}
		model, method := parts[0], parts[1]

		route, ok := gw.Route(routeName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown route", "type": "invalid_request_error"}})
			return
		}

		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error(), "type": "invalid_request_error"}})
			return
		}

		switch method {
		case "generateContent":
			out, err := gw.HandleRequest(c.Request.Context(), route, constant.GeminiGenerate, model, raw)
			if err != nil {
				errorJSON(c, err)
				return
			}
			c.Data(http.StatusOK, "application/json", out)
		case "streamGenerateContent":
			streamGeminiAction(c, gw, route, model, raw)
		case "countTokens":
			out, err := gw.HandleRequest(c.Request.Context(), route, constant.GeminiCountTokens, model, raw)
			if err != nil {
				errorJSON(c, err)
				return
			}
			c.Data(http.StatusOK, "application/json", out)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown gemini method", "type": "invalid_request_error"}})
		}
	}
}

func streamGeminiAction(c *gin.Context, gw *gateway.Gateway, route *gateway.Route, model string, raw []byte) {
	streamToClient(c, gw, route, constant.GeminiGenerateStream, model, raw)
}

// geminiModelsGetHandler handles GET /v1beta/models/:action where action
// here is a bare model name (no ":method" suffix).
func geminiModelsGetHandler(gw *gateway.Gateway, routeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := gw.Route(routeName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown route", "type": "invalid_request_error"}})
			return
		}
		model := strings.TrimPrefix(strings.TrimPrefix(c.Param("action"), "/"), "models/")
		out, err := gw.HandleRequest(c.Request.Context(), route, constant.GeminiModelsGet, model, nil)
		if err != nil {
			errorJSON(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", out)
	}
}
