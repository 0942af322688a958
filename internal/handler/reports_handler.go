package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Reports
// ============================================================

func reportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports")
		defer span.End()

		criteria, err := queryCriteria(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		strategy, err := domain.ParseSummaryStrategy(r.URL.Query().Get("summary"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("report.bill_type", string(criteria.BillType)),
			attribute.Int("report.month", criteria.Month),
			attribute.Int("report.year", criteria.Year),
			attribute.String("report.summary", string(strategy)),
		)

		rep, err := svc.GetReport(ctx, OwnerIDFromContext(ctx), criteria, strategy)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, rep)
	}
}

func overviewHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/overview")
		defer span.End()

		month, err := queryInt(r, "month")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		year, err := queryInt(r, "year")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		strategy, err := domain.ParseSummaryStrategy(r.URL.Query().Get("summary"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		overview, err := svc.GetOverview(ctx, OwnerIDFromContext(ctx), month, year, strategy)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, overview)
	}
}

func dashboardHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/dashboard")
		defer span.End()

		strategy, err := domain.ParseSummaryStrategy(r.URL.Query().Get("summary"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rep, err := svc.GetDashboard(ctx, OwnerIDFromContext(ctx), strategy)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, rep)
	}
}

func exportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/export")
		defer span.End()

		criteria, err := queryCriteria(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		format, err := domain.ParseExportFormat(r.URL.Query().Get("format"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("export.format", string(format)))

		file, err := svc.Export(ctx, OwnerIDFromContext(ctx), criteria, format)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", file.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(file.Data); err != nil {
			logger.Warn("export: write response failed", zap.Error(err))
		}
	}
}
