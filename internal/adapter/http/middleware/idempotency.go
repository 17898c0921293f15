package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"wallet-registry/internal/core/ports"
	"wallet-registry/pkg/apperror"
	"wallet-registry/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// HeaderIdempotentReplay marks a response served from the idempotency cache.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
)

// cachedResponse is what gets stored per idempotency key.
type cachedResponse struct {
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     []byte            `json:"body"`
	BodyHash string            `json:"body_hash,omitempty"`
}

// Idempotency replays the first successful response of a POST carrying an
// Idempotency-Key header, so a retried create does not insert a second wallet.
// A key replayed with a different request body is rejected with 422.
// Requests without the header pass through. Cache failures never fail the request.
func Idempotency(cache ports.IdempotencyCache, ttl time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			response.Error(c, apperror.Validation("Idempotency-Key is too long"))
			c.Abort()
			return
		}

		hash, err := hashBody(c.Request)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(c, apperror.ErrBodyTooLarge(tooLarge.Limit))
			} else {
				response.Error(c, apperror.Validation("unreadable request body"))
			}
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		raw, err := cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency lookup failed, processing request")
		} else if raw != nil {
			var cached cachedResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				// Entries written before hashes were stored carry none.
				if cached.BodyHash != "" && cached.BodyHash != hash {
					response.Error(c, apperror.ErrIdempotencyKeyReused())
					c.Abort()
					return
				}
				for k, v := range cached.Headers {
					c.Header(k, v)
				}
				c.Header(HeaderIdempotentReplay, "true")
				c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
				c.Abort()
				return
			}
			log.Warn().Str("key", key).Msg("discarding unreadable idempotency entry")
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}

		payload, err := json.Marshal(cachedResponse{
			Status:   status,
			Headers:  replayableHeaders(rec.Header()),
			Body:     rec.body.Bytes(),
			BodyHash: hash,
		})
		if err != nil {
			return
		}
		if err := cache.Set(context.WithoutCancel(ctx), key, payload, ttl); err != nil {
			log.Warn().Err(err).Msg("failed to store idempotent response")
		}
	}
}

// hashBody returns the hex SHA-256 of the request body and leaves the body
// readable for the handler.
func hashBody(r *http.Request) (string, error) {
	if r.Body == nil {
		return hex.EncodeToString(sha256.New().Sum(nil)), nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// replayableHeaders keeps Location and the alert headers of a response.
func replayableHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for k := range h {
		if k == "Location" || strings.HasSuffix(k, "-Alert") || strings.HasSuffix(k, "-Params") {
			out[k] = h.Get(k)
		}
	}
	return out
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
