package web

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
)

// upgrader has no origin restriction: the controller is meant to be
// reached from whatever device the connection file/QR code is scanned
// on, identified by the embedded auth secret rather than the Origin
// header. Mirrors the teacher's package-level upgrader in
// server/server.go.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWebSocket upgrades one incoming connection and runs its session to
// completion on this goroutine — spec §5 thread 6's per-client threads
// are the session's own sender/relay goroutines spawned from here.
func serveWebSocket(secretKey string, b *bus.Bus, cfg *config.SharedFile, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("web: upgrade failed: %v", err)
			return
		}

		sess, err := newSession(conn, secretKey, b, cfg, logger)
		if err != nil {
			logger.Printf("web: new session: %v", err)
			_ = conn.Close()
			return
		}
		sess.run()
	}
}

// startWebSocketServer binds and serves the raw WebSocket listener,
// distinct from the HTTP discovery server (original_source/src/
// interface/web/ws.rs binds its own socket via ws_bind_addr, separate
// from http.rs's static/discovery server).
func startWebSocketServer(addr, secretKey string, b *bus.Bus, cfg *config.SharedFile, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", serveWebSocket(secretKey, b, cfg, logger))
	return http.ListenAndServe(addr, mux)
}
