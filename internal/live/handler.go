package live

import (
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/fpv-bracket/internal/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ServeWs subscribes the connection to the tournament named by the "id" URL parameter.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "Invalid tournament ID", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		slog.Warn("failed to upgrade live connection", "tournament_id", tournamentID, "error", err)
		return
	}

	c := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		tournament: tournamentID,
	}
	if !h.join(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
