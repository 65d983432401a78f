package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Haleralex/eventbus/eventbus"
	"github.com/Haleralex/eventbus/outbox"
)

var errRowNotFound = errors.New("outbox row not found")

// NewRouter builds the operator admin server: liveness/metrics probes
// plus one manual-retry endpoint, instrumented with otelgin the same
// way the teacher wires otelgin/otelgorm into its own HTTP server.
func NewRouter(serviceName string, bus *eventbus.Bus, store outbox.Store, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(otelgin.Middleware(serviceName))
	r.Use(RequestID(), Logging(logger), Recovery(logger))

	r.GET("/healthz", healthHandler())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/internal/outbox/:eventId/retry", retryHandler(bus, store, logger))

	return r
}

func healthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// retryHandler republishes one outbox row on demand, for an operator
// responding to a PublishedFailed row without waiting for the next
// scheduled republisher pass. It runs the same mark/publish/mark
// sequence the republisher's scheduled sweep does, just for a single
// row picked by id.
func retryHandler(bus *eventbus.Bus, store outbox.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := uuid.Parse(c.Param("eventId"))
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid event id: %w", err))
			return
		}

		ctx := c.Request.Context()
		entry, found, err := store.FindByID(ctx, eventID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		if !found {
			notFound(c, errRowNotFound)
			return
		}
		if entry.Event == nil {
			respondError(c, http.StatusUnprocessableEntity, fmt.Errorf("event type %q is not registered in this process", entry.EventTypeName))
			return
		}

		if err := store.MarkInProgress(ctx, eventID); err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}

		if err := bus.Publish(ctx, entry.Event); err != nil {
			if markErr := store.MarkFailed(ctx, eventID); markErr != nil {
				logger.Error("outbox retry: failed to mark row failed after publish error", "event_id", eventID, "error", markErr)
			}
			respondError(c, http.StatusBadGateway, err)
			return
		}

		if err := store.MarkPublished(ctx, eventID); err != nil {
			respondError(c, http.StatusInternalServerError, err)
			return
		}

		respondOK(c, http.StatusOK, gin.H{"eventId": eventID, "state": outbox.Published.String()})
	}
}
