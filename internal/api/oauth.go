package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/module-gw/gproxy/internal/oauth"
)

// TokenSink is invoked with every token an OAuth flow produces (login
// completion or a poll success), letting main.go decide how to persist it
// (storage row + credential pool entry) without this package depending on
// either.
type TokenSink func(provider string, tok oauth.Token)

// registerOAuthRoutes wires the authorization-code+PKCE and device-auth
// flows onto engine, grounded on the teacher's /anthropic/callback,
// /codex/callback, /google/callback routes (internal/api/server.go) but
// generalized to oauth.Orchestrator's state-map model instead of writing
// a token file per callback.
func registerOAuthRoutes(engine *gin.Engine, orch *oauth.Orchestrator, sink TokenSink) {
	grp := engine.Group("/oauth/:provider")

	grp.GET("/start", func(c *gin.Context) {
		provider := c.Param("provider")
		authorizeURL, stateID, err := orch.StartAuthorizationCode(provider)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"authorize_url": authorizeURL, "state": stateID})
	})

	grp.GET("/callback", func(c *gin.Context) {
		code := c.Query("code")
		if errStr := c.Query("error"); errStr != "" {
			c.String(http.StatusOK, "<html><body><h1>Authentication failed</h1><p>%s</p></body></html>", errStr)
			return
		}
		stateID, err := orch.ResolveState(extractCallbackState(c))
		if err != nil {
			writeOAuthError(c, err)
			return
		}
		provider, tok, err := orch.Callback(c.Request.Context(), stateID, code)
		if err != nil {
			writeOAuthError(c, err)
			return
		}
		if sink != nil {
			sink(provider, tok)
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, "<html><body><h1>Authentication successful!</h1><p>You can close this window.</p></body></html>")
	})

	grp.GET("/device/start", func(c *gin.Context) {
		provider := c.Param("provider")
		result, err := orch.StartDevice(c.Request.Context(), provider)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	grp.GET("/device/poll", func(c *gin.Context) {
		provider := c.Param("provider")
		deviceCode := c.Query("device_code")
		tok, err := orch.PollDevice(c.Request.Context(), provider, deviceCode)
		if err != nil {
			var pending oauth.ErrDevicePending
			if errors.As(err, &pending) {
				c.Header("Retry-After", strconv.Itoa(int(pending.RetryAfter.Seconds())))
				c.JSON(http.StatusConflict, gin.H{"error": gin.H{"message": "authorization pending", "retry_after": pending.RetryAfter.Seconds()}})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		if sink != nil {
			sink(provider, tok)
		}
		c.JSON(http.StatusOK, gin.H{"status": "complete"})
	})
}

// extractCallbackState resolves a callback's state_id from the request
// itself: an explicit state query param, or one embedded in a callback_url
// param (some providers redirect through an intermediary that hands the
// original redirect URL back as a single query value). An empty result
// tells Orchestrator.ResolveState to fall back to the sole pending login.
func extractCallbackState(c *gin.Context) string {
	if state := c.Query("state"); state != "" {
		return state
	}
	if raw := c.Query("callback_url"); raw != "" {
		if u, err := url.Parse(raw); err == nil {
			return u.Query().Get("state")
		}
	}
	return ""
}

// writeOAuthError maps a callback failure to its HTTP response: the
// ambiguous-state case gets the specific error code scenario tests assert
// on, everything else (missing, expired, token exchange failure) gets a
// generic 400 with the underlying message.
func writeOAuthError(c *gin.Context, err error) {
	if errors.Is(err, oauth.ErrAmbiguousState) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ambiguous_state"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
}
