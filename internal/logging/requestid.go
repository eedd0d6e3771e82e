package logging

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type attemptIDKey struct{}

const ginAttemptIDKey = "docgpt.request_id"

// GenerateRequestID returns a short id that ties together the log lines of one
// authorization attempt or one callback request.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, attemptIDKey{}, id)
}

// GetRequestID is empty when ctx carries no id.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(attemptIDKey{}).(string)
	return id
}

// Entry is the logger for work done on behalf of ctx.
func Entry(ctx context.Context) *log.Entry {
	id := GetRequestID(ctx)
	if id == "" {
		return log.NewEntry(log.StandardLogger())
	}
	return log.WithField("request_id", id)
}

func SetGinRequestID(c *gin.Context, id string) {
	if c != nil {
		c.Set(ginAttemptIDKey, id)
	}
}

func GetGinRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(ginAttemptIDKey)
}
