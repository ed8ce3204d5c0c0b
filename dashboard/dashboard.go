// Package dashboard serves the single-page operator view and the websocket
// feed of simulation frames.
package dashboard

import (
	_ "embed"
	"net/http"
)

//go:embed dashboard.html
var frontendFile []byte

func SetupHandlers(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/", serveDashboard)
	mux.Handle("/ws", hub)
}

func serveDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(frontendFile)
}
