package handlers

import (
	"net/http"
	"time"
)

// AccessCookieName is the opaque cookie binding a browser to its access record
const AccessCookieName = "lg_access"

// CookieConfig holds security settings for the access cookie
type CookieConfig struct {
	Domain string
	Secure bool
}

// SetAccessCookie sets the access cookie in an httpOnly cookie whose lifetime
// matches the tenant's cache window. SameSite=Lax so the cookie survives the
// top-level redirect from the verification link.
func SetAccessCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     AccessCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true, // prevents JavaScript access (XSS protection)
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// ReadAccessCookie returns the access cookie value, or "" when absent
func ReadAccessCookie(r *http.Request) string {
	cookie, err := r.Cookie(AccessCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
