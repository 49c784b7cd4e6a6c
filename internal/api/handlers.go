// Package api is the thin gin-gonic/gin router exposing the three inbound
// protocol surfaces (Claude Messages, Gemini generateContent, OpenAI Chat
// Completions + Responses) plus the OAuth start/callback routes, grounded
// on internal/api/server.go's route-group-per-protocol layout and
// claude-code-handlers.go's raw-body-in/SSE-flush-out handler shape.
// Admin CRUD UI is out of scope per spec §1 and is not built here.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/gateway"
	"github.com/module-gw/gproxy/internal/stream"
	"github.com/module-gw/gproxy/internal/upstream"
	log "github.com/sirupsen/logrus"
)

// errorJSON mirrors the {error: {message, type}} envelope every inbound
// protocol's error shape roughly agrees on closely enough for a single
// fallback representation.
func errorJSON(c *gin.Context, err error) {
	status := upstream.HTTPStatus(err)
	c.JSON(status, gin.H{"error": gin.H{"message": err.Error(), "type": "upstream_error"}})
}

func modelFromBody(raw []byte) string {
	return gjson.GetBytes(raw, "model").String()
}

// dispatchNonStream handles one buffered request/response round trip for
// op against route, writing the transformed response body as JSON.
func dispatchNonStream(gw *gateway.Gateway, routeName string, op constant.Op) gin.HandlerFunc {
	return func(c *gin.Context) {
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
		model := modelFromBody(raw)
		out, err := gw.HandleRequest(c.Request.Context(), route, op, model, raw)
		if err != nil {
			log.Errorf("gateway: %s failed: %v", op, err)
			errorJSON(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", out)
	}
}

// streamToClient runs the gateway's streaming pipeline and flushes every
// translated chunk to c as it's produced, shared by dispatchStream and
// the Gemini action handler (whose model/method come from the path, not
// the body).
func streamToClient(c *gin.Context, gw *gateway.Gateway, route *gateway.Route, op constant.Op, model string, raw []byte) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "streaming not supported", "type": "server_error"}})
		return
	}

	err := gw.HandleStream(c.Request.Context(), route, op, model, raw, func(chunk stream.Chunk) error {
		writeSSE(c.Writer, chunk)
		flusher.Flush()
		return nil
	})
	if err != nil {
		log.Errorf("gateway: %s stream failed: %v", op, err)
		writeSSE(c.Writer, stream.Chunk{Event: "error", Data: fmt.Sprintf(`{"error":%q}`, err.Error())})
		flusher.Flush()
	}
}

// dualModeHandler serves one endpoint that is either buffered or streamed
// depending on the inbound "stream" field, matching the teacher's OpenAI
// handlers (ChatCompletions/Responses) which branch on req.Stream inside
// a single route rather than registering two routes.
func dualModeHandler(gw *gateway.Gateway, routeName string, nonStreamOp, streamOp constant.Op) gin.HandlerFunc {
	return func(c *gin.Context) {
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
		model := modelFromBody(raw)
		if gjson.GetBytes(raw, "stream").Bool() {
			streamToClient(c, gw, route, streamOp, model, raw)
			return
		}
		out, err := gw.HandleRequest(c.Request.Context(), route, nonStreamOp, model, raw)
		if err != nil {
			log.Errorf("gateway: %s failed: %v", nonStreamOp, err)
			errorJSON(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", out)
	}
}

func writeSSE(w http.ResponseWriter, chunk stream.Chunk) {
	if chunk.Event != "" {
		fmt.Fprintf(w, "event: %s\n", chunk.Event)
	}
	fmt.Fprintf(w, "data: %s\n\n", chunk.Data)
}

// modelsListHandler serves a bare GET .../models with no body and no
// model-scoped path param.
func modelsListHandler(gw *gateway.Gateway, routeName string, op constant.Op) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := gw.Route(routeName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown route", "type": "invalid_request_error"}})
			return
		}
		out, err := gw.HandleRequest(c.Request.Context(), route, op, "", nil)
		if err != nil {
			errorJSON(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", out)
	}
}

// modelsGetHandler reuses dispatchNonStream's transform path with an
// empty body; the model name comes from the :model path param instead of
// a JSON body field.
func modelsGetHandler(gw *gateway.Gateway, routeName string, op constant.Op) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := gw.Route(routeName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "unknown route", "type": "invalid_request_error"}})
			return
		}
		model := strings.TrimPrefix(c.Param("model"), "models/")
		out, err := gw.HandleRequest(c.Request.Context(), route, op, model, nil)
		if err != nil {
			errorJSON(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", out)
	}
}
