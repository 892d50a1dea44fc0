package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type localConnKey struct{}

func withLocalConn(ctx context.Context) context.Context {
	return context.WithValue(ctx, localConnKey{}, true)
}

// isLocal reports whether r arrived over the Unix socket. File permissions
// on the socket are the access control there.
func isLocal(r *http.Request) bool {
	local, _ := r.Context().Value(localConnKey{}).(bool)
	return local
}

// credentials guard TCP requests with HTTP basic auth. The zero value
// admits every request.
type credentials struct {
	user string
	hash string // bcrypt hash; anything else compares as plain text
}

func (c credentials) enabled() bool { return c.user != "" }

func (c credentials) match(user, pass string) bool {
	// Evaluate both so a wrong user name costs the same as a wrong password.
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.user)) == 1
	passOK := checkPassword(pass, c.hash)
	return userOK && passOK
}

func checkPassword(plain, hash string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(hash)) == 1
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isLocal(r) || !s.creds.enabled() {
			next(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="ringbuf"`)
			writeError(w, http.StatusUnauthorized, "authentication required", "UNAUTHORIZED")
			return
		}
		if !s.creds.match(user, pass) {
			s.logger.Warn("rejected API credentials", "remote", r.RemoteAddr, "user", user)
			w.Header().Set("WWW-Authenticate", `Basic realm="ringbuf"`)
			writeError(w, http.StatusUnauthorized, "invalid credentials", "UNAUTHORIZED")
			return
		}
		next(w, r)
	}
}
