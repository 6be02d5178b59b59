package handler

import (
	"net/http"

	"github.com/boddenberg/pharma-crm/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Client analytics
// ============================================================

// clientAnalyticsHandler serves GET /v1/clients/{clientId}/analytics?period=3%20months&now=2024-06-20.
func clientAnalyticsHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/{clientId}/analytics")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		period := r.URL.Query().Get("period")
		span.SetAttributes(
			attribute.String("client.id", clientID),
			attribute.String("analytics.period", period),
		)

		asOf, err := parseAsOf(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		result, err := svc.GetClientAnalytics(ctx, clientID, period, asOf)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func visitBriefHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/{clientId}/visit-brief")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		span.SetAttributes(attribute.String("client.id", clientID))

		asOf, err := parseAsOf(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		brief, err := svc.GetVisitBrief(ctx, clientID, asOf)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, brief)
	}
}
