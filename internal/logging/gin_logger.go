// Package logging configures logrus for docgpt and provides the Gin middleware of the
// local callback listener. Authorization codes never reach a log line unmasked.
package logging

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/docgpt/docgpt/internal/util"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const quietRequestKey = "docgpt.quiet"

// GinLogrusLogger tags each callback request with an id and writes one line per request
// once the handler chain has finished:
//
//	200 |    1ms |  127.0.0.1 | GET   "/callback?code=ab...yz"
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		id := GenerateRequestID()
		SetGinRequestID(c, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))

		target := c.Request.URL.Path
		if q := util.MaskSensitiveQuery(c.Request.URL.RawQuery); q != "" {
			target += "?" + q
		}

		c.Next()

		if c.GetBool(quietRequestKey) {
			return
		}
		status := c.Writer.Status()
		line := fmt.Sprintf("%3d | %8v | %15s | %-5s %q",
			status, time.Since(began).Truncate(time.Millisecond), c.ClientIP(), c.Request.Method, target)
		if private := c.Errors.ByType(gin.ErrorTypePrivate).String(); private != "" {
			line += " | " + private
		}
		log.WithField("request_id", id).Log(levelForStatus(status), line)
	}
}

func levelForStatus(status int) log.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return log.ErrorLevel
	case status >= http.StatusBadRequest:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

// GinLogrusRecovery turns a handler panic into a logged 500. http.ErrAbortHandler is
// re-raised so net/http can drop the connection quietly.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			panic(http.ErrAbortHandler)
		}
		log.WithFields(log.Fields{
			"request_id": GetGinRequestID(c),
			"path":       c.Request.URL.Path,
			"panic":      recovered,
			"stack":      string(debug.Stack()),
		}).Error("callback handler panicked")
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// SkipGinRequestLogging keeps GinLogrusLogger from writing a line for this request.
func SkipGinRequestLogging(c *gin.Context) {
	if c != nil {
		c.Set(quietRequestKey, true)
	}
}
