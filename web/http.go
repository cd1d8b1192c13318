package web

import (
	"encoding/json"
	"net/http"

	"github.com/skyline-rigging/flyer-controller/config"
)

// Dependency of startHTTPServer kept minimal (no logger) — its only
// failure mode is http.ListenAndServe returning, which the caller in
// connect.go already treats as fatal via log.Fatal.

// wsLink is the JSON body GET /ws returns: the client fetches this to
// learn where the actual WebSocket listener lives (spec §6: "GET /ws
// returns JSON {uri: \"ws://…\"}").
type wsLink struct {
	URI string `json:"uri"`
}

// startHTTPServer serves the static web UI at "/" and the JSON
// discovery link at "/ws", grounded on original_source/src/interface/
// web/http.rs's iron+staticfile mount, adapted to net/http's
// http.FileServer/ServeMux.
func startHTTPServer(web config.WebParams) error {
	link := wsLink{URI: web.WSURI()}
	body, err := json.Marshal(link)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(web.WebRootPath)))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	return http.ListenAndServe(web.HTTPAddr, mux)
}
