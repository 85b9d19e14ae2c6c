package wsmux

import (
	"net/http"

	"github.com/coder/websocket"
)

// HTTPHandler accepts the WebSocket upgrade at /ws and runs the
// connection's full lifecycle through Serve, blocking until it ends.
func (m *Multiplex) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// The REST surface and the WebSocket endpoint are served from
			// the same origin as the authoring client; no cross-origin
			// relaxation is needed here (auth itself is a spec §1
			// Non-goal).
		})
		if err != nil {
			m.logger.Warn("websocket accept failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if m.cfg.MaxMessageBytes > 0 {
			ws.SetReadLimit(m.cfg.MaxMessageBytes)
		}

		if err := m.Serve(r.Context(), ws); err != nil {
			m.logger.Debug("websocket connection ended", map[string]interface{}{"error": err.Error()})
		}
	}
}
