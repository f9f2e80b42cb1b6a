package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meetsync/sfu-server/internal/repository/artifact"
	"github.com/meetsync/sfu-server/internal/service/sfu"
	"github.com/meetsync/sfu-server/pkg/rest"
)

func (c *controller) getRooms(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": c.sfuService.GetRooms(r.Context())})
}

// getMinutes hands the minutes document out exactly once; a second read or an
// expired cache entry is a 404.
func (c *controller) getMinutes(w http.ResponseWriter, r *http.Request) {
	channelId := chi.URLParam(r, "channel-id")

	document, err := c.minutesService.PopMinutes(r.Context(), channelId)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "minutes not found"})
			return
		}
		c.logger.WarnContext(r.Context(), "failed to pop minutes", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(document)
}

func (c *controller) getTranscript(w http.ResponseWriter, r *http.Request) {
	channelId := chi.URLParam(r, "channel-id")

	transcript, err := c.minutesService.PopTranscript(r.Context(), channelId)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "transcript not found"})
			return
		}
		c.logger.WarnContext(r.Context(), "failed to pop transcript", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(transcript))
}

func (c *controller) getWebinarLink(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	info, err := c.sfuService.ResolveLink(r.Context(), slug)
	if err != nil {
		if errors.Is(err, sfu.ErrLinkNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "link not found"})
			return
		}
		c.logger.WarnContext(r.Context(), "failed to resolve link", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": info})
}
