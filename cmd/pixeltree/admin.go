package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/rcrowley/go-metrics"
	"libdb.so/hrt"
)

type adminHandler struct {
	*chi.Mux
	coordinator *pixeltree.Coordinator
	metrics     metrics.Registry
}

func newAdminHandler(coordinator *pixeltree.Coordinator, registry metrics.Registry, level slog.Level) *adminHandler {
	h := &adminHandler{
		Mux:         chi.NewRouter(),
		coordinator: coordinator,
		metrics:     registry,
	}

	h.Use(httplog.RequestLogger(httplog.NewLogger("pixeltree-admin", httplog.Options{
		LogLevel: level,
		Concise:  true,
	})))

	h.Get("/metrics", h.getMetrics)

	h.Group(func(r chi.Router) {
		r.Use(hrt.Use(hrt.Opts{
			Encoder: hrt.CombinedEncoder{
				Encoder: hrt.JSONEncoder,
				Decoder: hrt.URLDecoder,
			},
			ErrorWriter: hrt.TextErrorWriter,
		}))

		r.Get("/status", hrt.Wrap(h.getStatus))
		r.Post("/skip", hrt.Wrap(h.skip))
	})

	return h
}

func (h *adminHandler) getMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	metrics.WriteJSONOnce(h.metrics, w)
}

type statusRequest struct{}

type statusResponse struct {
	Effect    string   `json:"effect"`
	Previous  string   `json:"previous,omitempty"`
	Duration  float64  `json:"duration"`
	Remaining float64  `json:"remaining"`
	Effects   []string `json:"effects"`
}

func (h *adminHandler) getStatus(ctx context.Context, req statusRequest) (statusResponse, error) {
	status := h.coordinator.Status()

	var remaining time.Duration
	if status.Effect != "" {
		remaining = max(0, status.Duration-time.Since(status.SelectedAt))
	}

	return statusResponse{
		Effect:    status.Effect,
		Previous:  status.Previous,
		Duration:  status.Duration.Seconds(),
		Remaining: remaining.Seconds(),
		Effects:   h.coordinator.Names(),
	}, nil
}

type skipRequest struct {
	Reason string `query:"reason"`
}

func (h *adminHandler) skip(ctx context.Context, req skipRequest) (hrt.None, error) {
	slog.InfoContext(ctx,
		"skip requested over admin API",
		"reason", req.Reason)

	h.coordinator.Skip()
	return hrt.Empty, nil
}
