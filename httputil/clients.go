package httputil

import (
	"net/http"
	"time"
)

// Clients holds the shared HTTP clients. API calls (auth, document store)
// get a short timeout; uploads get a longer one.
type Clients struct {
	API    *http.Client
	Upload *http.Client
}

func NewClients() *Clients {
	return &Clients{
		API:    &http.Client{Timeout: 30 * time.Second},
		Upload: &http.Client{Timeout: 120 * time.Second},
	}
}
