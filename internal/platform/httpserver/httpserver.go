package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. The write timeout leaves room for a full
// /clientes/export stream; idle connections are recycled after two minutes.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
