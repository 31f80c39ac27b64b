package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

const inviteQRSize = 320

// handleInvite renders the challenge link as a PNG QR code so the friend can
// scan it from the challenger's screen.
func handleInvite(logger *slog.Logger, challenges Challenges, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := challenges.Challenge(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		png, err := qrcode.Encode(challengeLink(publicURL, c.ID), qrcode.Medium, inviteQRSize)
		if err != nil {
			logger.Error("qr generation failed", "session", c.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "qr generation failed")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(png)
	}
}
