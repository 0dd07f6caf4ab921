package httpserver

import (
	"net/http"
	"time"
)

// New builds the audit API server. The read-header timeout caps how long a
// slow client can hold a connection before sending its request line.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
