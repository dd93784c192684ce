package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/cache"
)

const IdempotencyHeader = "X-Idempotency-Key"

// RequestLogger logs every request once it has been served.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if actor := actorFrom(c); actor.UserID != 0 {
			fields = append(fields, zap.Int64("user_id", actor.UserID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request served", fields...)
		}
	}
}

// IdempotencyStore keeps one response per idempotency key and a short lock
// while the first request with that key is running.
type IdempotencyStore interface {
	AcquireIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key, token string) error
	GetIdempotentResponse(ctx context.Context, key string) (*cache.IdempotencyRecord, error)
	SaveIdempotentResponse(ctx context.Context, key string, rec cache.IdempotencyRecord, ttl time.Duration) error
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a request that carried the same
// X-Idempotency-Key for the same caller and route. Only POST requests that
// carry the header are tracked. Store failures let the request through
// unprotected.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(IdempotencyHeader)
		if store == nil || header == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("%d:%s:%s:%s", actorFrom(c).UserID, c.Request.Method, c.Request.URL.Path, header)

		if replayed := replay(c, store, key, logger); replayed {
			return
		}

		token, ok, err := store.AcquireIdempotencyKey(ctx, key, ttl)
		if err != nil {
			logger.Warn("idempotency lock unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, errorBody("CONFLICT", "a request with this idempotency key is in progress"))
			return
		}
		defer func() {
			if err := store.ReleaseIdempotencyKey(context.WithoutCancel(ctx), key, token); err != nil {
				logger.Warn("idempotency lock release failed", zap.String("key", key), zap.Error(err))
			}
		}()

		// the first request may have finished between the lookup and the lock
		if replayed := replay(c, store, key, logger); replayed {
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		stored := cache.IdempotencyRecord{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		}
		if err := store.SaveIdempotentResponse(context.WithoutCancel(ctx), key, stored, ttl); err != nil {
			logger.Warn("idempotent response not stored", zap.String("key", key), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, store IdempotencyStore, key string, logger *zap.Logger) bool {
	stored, err := store.GetIdempotentResponse(c.Request.Context(), key)
	if err != nil {
		logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if stored == nil {
		return false
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(stored.Status, stored.ContentType, stored.Body)
	c.Abort()
	return true
}
