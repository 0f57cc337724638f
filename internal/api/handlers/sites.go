// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/indexbridge/internal/models"
)

type SitesHandler struct {
	store *models.SiteStore
}

func NewSitesHandler(store *models.SiteStore) *SitesHandler {
	return &SitesHandler{store: store}
}

func (h *SitesHandler) Routes(r chi.Router) {
	r.Route("/sites", func(r chi.Router) {
		r.Get("/", h.List)
		r.Delete("/{domain}", h.Delete)
	})
}

// List returns every registered site.
func (h *SitesHandler) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sites")
		RespondError(w, http.StatusInternalServerError, "Failed to list sites")
		return
	}
	if sites == nil {
		sites = []models.Site{}
	}

	RespondJSON(w, http.StatusOK, sites)
}

// Delete unregisters a site. The next refresh registers it again if the
// manager still reports it.
func (h *SitesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	if err := h.store.Delete(r.Context(), domain); err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			RespondError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Error().Err(err).Str("domain", domain).Msg("Failed to delete site")
		RespondError(w, http.StatusInternalServerError, "Failed to delete site")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
