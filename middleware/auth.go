package middleware

import (
	"net/http"

	"boardgame-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// RequireToken guards admin endpoints with a shared bearer token checked
// against the Authorization header. An empty configured token locks the
// endpoints rather than leaving them open.
func RequireToken(token string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("Authorization") != token {
				log.Warnf("%s Unauthorized admin request from %s for %s", logcolors.LogServer, r.RemoteAddr, r.URL.Path)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
}
