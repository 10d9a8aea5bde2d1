package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ignite/whatsapp-warmup/internal/analytics"
	"github.com/ignite/whatsapp-warmup/internal/pkg/httputil"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
)

// GetAnalytics returns the analysis for ?period=week|month|all.
func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	period := analytics.ParsePeriod(r.URL.Query().Get("period"))
	rep, err := h.analytics.Generate(instanceParam(r), period)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, rep)
}

// GetHealthScore returns the 0-100 health score and its label.
func (h *Handlers) GetHealthScore(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	score, err := h.analytics.HealthScore(name)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"instanceName": name,
		"healthScore":  score,
		"status":       analytics.HealthStatus(score),
	})
}

// GetDashboard returns the single-screen view of the instance.
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.analytics.Dashboard(instanceParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, d)
}

// CompareInstances compares the instance with ?with=<other>.
func (h *Handlers) CompareInstances(w http.ResponseWriter, r *http.Request) {
	other := strings.TrimSpace(r.URL.Query().Get("with"))
	if other == "" {
		httputil.BadRequest(w, "query parameter 'with' is required")
		return
	}
	c, err := h.analytics.Compare(instanceParam(r), other)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// ExportMetrics downloads the metrics history as ?format=json (default) or
// csv. With archive=true a copy is also stored in the export bucket.
func (h *Handlers) ExportMetrics(w http.ResponseWriter, r *http.Request) {
	name := instanceParam(r)
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httputil.BadRequest(w, "format must be json or csv")
		return
	}

	exp, err := h.analytics.Export(name)
	if err != nil {
		writeError(w, err)
		return
	}

	var body bytes.Buffer
	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv"
		err = analytics.WriteCSV(&body, exp.Metrics)
	} else {
		err = json.NewEncoder(&body).Encode(exp)
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	if r.URL.Query().Get("archive") == "true" {
		if h.archiver == nil {
			httputil.BadRequest(w, "export archiving is not configured")
			return
		}
		key, err := h.archiver.Archive(r.Context(), name, format, body.Bytes())
		if err != nil {
			logger.Error("export archive failed", "instance", name, "error", err)
			httputil.BadGateway(w, "could not archive export")
			return
		}
		w.Header().Set("X-Archive-Key", key)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="warmup-metrics-%s.%s"`, name, format))
	w.WriteHeader(http.StatusOK)
	w.Write(body.Bytes())
}
