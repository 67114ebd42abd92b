package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// DeviceCookieName is the cookie carrying the opaque device identifier used
// in place of user accounts.
const DeviceCookieName = "cpm_device_id"

// DeviceIDFromRequest returns the caller's device identifier, or "" when
// the cookie is absent (first request, or cookies disabled).
func DeviceIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(DeviceCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// DeviceIdentityMiddleware mints a device identifier cookie when the client
// does not present one, so every subsequent request from the device carries
// a stable opaque identity. The minted id is also visible to the current
// request via the rewritten Cookie header.
func DeviceIdentityMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if DeviceIDFromRequest(r) == "" {
				id := uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
				r.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: id})
			}
			next.ServeHTTP(w, r)
		})
	}
}
