package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/keyquota/internal/application"
)

const (
	flashCookieName = "keyquota_flash"
	flashMaxAge     = 30
	// Browsers cap a cookie near 4KB; notices past this are dropped.
	flashMaxBytes = 3000
)

// setFlash stores notices for the page rendered after the redirect.
func setFlash(w http.ResponseWriter, notices []application.Notice) {
	if len(notices) == 0 {
		return
	}

	for len(notices) > 0 {
		data, err := json.Marshal(notices)
		if err != nil {
			return
		}
		value := base64.RawURLEncoding.EncodeToString(data)
		if len(value) <= flashMaxBytes {
			http.SetCookie(w, &http.Cookie{
				Name:     flashCookieName,
				Value:    value,
				Path:     "/",
				MaxAge:   flashMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			return
		}
		notices = notices[:len(notices)-1]
	}
}

// takeFlash reads and expires the pending notices. A malformed cookie is
// discarded silently.
func takeFlash(w http.ResponseWriter, r *http.Request) []application.Notice {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var notices []application.Notice
	if err := json.Unmarshal(data, &notices); err != nil {
		return nil
	}
	return notices
}
