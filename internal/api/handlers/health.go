// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/indexbridge/internal/services/bridge"
)

type HealthResponse struct {
	Status   string          `json:"status"`
	Managers []bridge.Status `json:"managers"`
}

type HealthHandler struct {
	managers *Managers
}

func NewHealthHandler(managers *Managers) *HealthHandler {
	return &HealthHandler{managers: managers}
}

// HandleHealth reports 200 when at least one bridge holds a non-empty
// indexer list, 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Managers: make([]bridge.Status, 0)}

	healthy := false
	for _, m := range h.managers.All() {
		st := m.Status()
		resp.Managers = append(resp.Managers, st)
		healthy = healthy || st.Healthy
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	RespondJSON(w, status, resp)
}

// HandleLiveness only reports that the process serves requests.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
