package auth

import (
	"net/http"
)

// CookieName is the name of the session cookie carrying the JWT.
const CookieName = "token"

// CookieOptions controls the environment-dependent cookie flags.
//
// Production deployments serve the API and the SPA from different origins, so the
// cookie must be Secure with SameSite=None to be sent on cross-site XHR. Local
// development runs over plain HTTP and uses Lax.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// CookieOptionsFor returns the cookie flags for the given APP_ENV value.
func CookieOptionsFor(env string) CookieOptions {
	if env == "production" {
		return CookieOptions{Secure: true, SameSite: http.SameSiteNoneMode}
	}
	return CookieOptions{SameSite: http.SameSiteLaxMode}
}

// SetSessionCookie issues the session cookie for SessionTTL.
func SetSessionCookie(w http.ResponseWriter, token string, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie immediately.
// It does not revoke the token itself.
func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
