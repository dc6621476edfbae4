package http

import (
	"bytes"
	"context"
	"crypto/rsa"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/idempotency"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/rateLimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	subjectKey
)

func loggerFrom(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l, ok := ctx.Value(loggerKey).(observability.Logger); ok {
		return l
	}
	return fallback
}

// SubjectFrom returns the authenticated user id, or "" when the request
// carried no token.
func SubjectFrom(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := logger.WithField("request_id", middleware.GetReqID(r.Context()))
			ctx := context.WithValue(r.Context(), loggerKey, entry)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			entry.WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("request served")
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer("http").Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// MetricsMiddleware counts requests by route pattern, so path parameters do
// not explode label cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status()), r.Method).Inc()
	})
}

// TimeoutMiddleware bounds how long handlers may wait on the store.
func TimeoutMiddleware(d time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JWTMiddleware verifies RS256 bearer tokens against key and stores the
// subject in the request context. A nil key disables authentication.
func JWTMiddleware(key *rsa.PublicKey, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				_ = writeJSONError(w, http.StatusUnauthorized, "authorization header is missing or malformed")
				return
			}

			claims := &jwt.RegisteredClaims{}
			_, err := jwt.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || claims.Subject == "" {
				loggerFrom(r.Context(), logger).WithError(err).Debug("rejected bearer token")
				_ = writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			if l, ok := r.Context().Value(loggerKey).(observability.Logger); ok {
				ctx = context.WithValue(ctx, loggerKey, l.WithField("user_id", claims.Subject))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware applies a per-minute fixed window per client IP and,
// when the request is authenticated, per user.
func RateLimitMiddleware(rl *rateLimit.RateLimiter, perIP, perUser int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !rl.Allow(r.Context(), "ip:"+ip, perIP, time.Minute) {
				_ = writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			if sub := SubjectFrom(r.Context()); sub != "" && !rl.Allow(r.Context(), "user:"+sub, perUser, time.Minute) {
				_ = writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdempotencyMiddleware requires an Idempotency-Key and replays the stored
// response for a repeated key. Without a backing store, keys are still
// validated but nothing is replayed.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if err := idempotency.ValidateKey(key); err != nil {
				_ = writeJSONError(w, http.StatusBadRequest, clientMessage(err))
				return
			}
			if idemp == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				_ = writeJSONError(w, http.StatusBadRequest, "request body too large or unreadable")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := strings.TrimSpace(key)
			if sub := SubjectFrom(r.Context()); sub != "" {
				scope = sub + ":" + scope
			}
			fingerprint := idempotency.Fingerprint(body)
			log := loggerFrom(r.Context(), logger)

			stored, err := idemp.Begin(r.Context(), scope, fingerprint)
			if err != nil {
				status, msg := statusFor(err)
				log.WithError(err).Warn("idempotency check failed")
				_ = writeJSONError(w, status, msg)
				return
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Result)
				return
			}

			rec := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server errors are not final; let the client retry with the same key.
			ctx := context.WithoutCancel(r.Context())
			if rec.status >= http.StatusInternalServerError {
				err = idemp.Abandon(ctx, scope)
			} else {
				err = idemp.Finish(ctx, scope, fingerprint, idempotency.Response{Status: rec.status, Result: rec.buf.Bytes()})
			}
			if err != nil {
				log.WithError(err).Warn("idempotency bookkeeping failed")
			}
		})
	}
}

type bodyRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (b *bodyRecorder) WriteHeader(code int) {
	if !b.wroteHeader {
		b.status = code
		b.wroteHeader = true
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	b.buf.Write(p)
	return b.ResponseWriter.Write(p)
}
