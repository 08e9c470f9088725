package main

import (
	"context"
	"log/slog"
	"time"

	"dev.acmcsuf.com/pixeltree"
	"github.com/go-chi/chi/v5"
	"libdb.so/hrt"
)

type adminHandler struct {
	*chi.Mux
	server  *pixeltree.Server
	started time.Time
}

func newAdminHandler(server *pixeltree.Server) *adminHandler {
	h := &adminHandler{
		Mux:     chi.NewRouter(),
		server:  server,
		started: time.Now(),
	}

	h.Use(hrt.Use(hrt.Opts{
		Encoder: hrt.CombinedEncoder{
			Encoder: hrt.JSONEncoder,
			Decoder: hrt.URLDecoder,
		},
		ErrorWriter: hrt.TextErrorWriter,
	}))

	h.Get("/status", hrt.Wrap(h.getStatus))
	h.Post("/kick-all", hrt.Wrap(h.kickAll))

	return h
}

type statusRequest struct{}

type statusResponse struct {
	Uptime  float64                  `json:"uptime"`
	Clients []pixeltree.ClientStatus `json:"clients"`
	// LastFrame is the newest frame from any client, or null if no client
	// has sent one.
	LastFrame *time.Time `json:"last_frame"`
}

func (h *adminHandler) getStatus(ctx context.Context, req statusRequest) (statusResponse, error) {
	clients := h.server.Clients()

	resp := statusResponse{
		Uptime:  time.Since(h.started).Seconds(),
		Clients: clients,
	}
	if resp.Clients == nil {
		resp.Clients = []pixeltree.ClientStatus{}
	}

	for _, client := range clients {
		if client.LastFrame.IsZero() {
			continue
		}
		if resp.LastFrame == nil || client.LastFrame.After(*resp.LastFrame) {
			last := client.LastFrame
			resp.LastFrame = &last
		}
	}

	return resp, nil
}

type kickAllRequest struct {
	Reason string `query:"reason"`
}

// kickAll drops every client. Their pixels are blanked as they go.
func (h *adminHandler) kickAll(ctx context.Context, req kickAllRequest) (hrt.None, error) {
	slog.InfoContext(ctx,
		"kicking all clients",
		"clients", len(h.server.Clients()),
		"reason", req.Reason)

	h.server.KickAllConnections(req.Reason)
	return hrt.Empty, nil
}
