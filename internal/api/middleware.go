package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/auth"
	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/internal/models"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

const (
	actorKey  = "actor"
	claimsKey = "claims"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunublog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sunublog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// instrument opens one span per request and records request metrics
func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := routeOf(c)

		ctx, span := telemetry.StartSpan(c.Request.Context(), "http."+c.Request.Method+" "+route)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}
		telemetry.EndSpan(span, err)

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// accessLog logs one line per request, at a level chosen by status
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if actor := actorFrom(c); actor != nil {
			fields = append(fields, zap.Int64("user_id", actor.ID))
		}

		log := logging.WithTrace(c.Request.Context(), logger)
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, auth.TokenType) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authenticate resolves the bearer token into the acting user. With required
// unset, requests without a usable token continue anonymously.
func (r *Router) authenticate(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			if required {
				r.respondError(c, errUnauthenticated)
				return
			}
			c.Next()
			return
		}

		ctx := c.Request.Context()
		claims, err := r.tokens.Parse(ctx, raw)
		if err != nil {
			if !required && isTokenError(err) {
				c.Next()
				return
			}
			r.respondError(c, err)
			return
		}

		// Parse already verified the subject
		userID, _ := claims.UserID()
		user, err := r.services.Identity.GetUser(ctx, userID)
		if err != nil {
			if blog.KindOf(err) == blog.KindNotFound {
				if required {
					r.respondError(c, errUnauthenticated)
					return
				}
				c.Next()
				return
			}
			r.respondError(c, err)
			return
		}

		c.Set(actorKey, user)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func isTokenError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrRevokedToken)
}

func actorFrom(c *gin.Context) *models.User {
	if v, ok := c.Get(actorKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

func claimsFrom(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
