package shared

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/possync/internal/platform/httpx"
)

const (
	// AdminPasswordHeader carries the admin password.
	AdminPasswordHeader = "X-Admin-Password"
	adminPasswordQuery  = "admin_password"
)

// AdminGate protects diagnostic endpoints with a bcrypt checked password.
type AdminGate struct {
	hash   []byte
	logger *slog.Logger
}

// NewAdminGate builds a gate for the given bcrypt hash. An empty hash
// disables every protected route.
func NewAdminGate(hash string, logger *slog.Logger) *AdminGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminGate{hash: []byte(strings.TrimSpace(hash)), logger: logger}
}

// Check validates a password against the configured hash.
func (g *AdminGate) Check(password string) error {
	if g == nil || len(g.hash) == 0 {
		return ErrAdminGateDisabled
	}
	if password == "" {
		return ErrAdminPasswordRequired
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return ErrAdminPasswordInvalid
	}
	return nil
}

// Require is the middleware form of Check.
func (g *AdminGate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		password := r.Header.Get(AdminPasswordHeader)
		if password == "" {
			password = r.URL.Query().Get(adminPasswordQuery)
		}
		err := g.Check(password)
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, ErrAdminGateDisabled):
			httpx.Fail(w, http.StatusServiceUnavailable, err.Error())
		default:
			g.logger.Warn("admin gate denied", slog.String("path", r.URL.Path), slog.String("remote", r.RemoteAddr))
			httpx.RespondError(w, err)
		}
	})
}
