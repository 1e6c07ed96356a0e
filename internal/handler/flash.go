package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// FLASH MESSAGES:
// A flash is a message shown once on the next rendered page ("Recipe saved
// successfully!"). They ride in a short-lived cookie so they survive the
// redirect after a POST:
//
//	POST /create_recipe → Set-Cookie: flash=... → 303 /
//	GET /               → render flashes, clear cookie
//
// The cookie holds base64url(JSON list of flashes).

const flashCookieName = "flash"

// Flash categories. Templates style them as flash-<category>.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// maxFlashes keeps the cookie well under the 4 KB limit.
const maxFlashes = 5

// Flash is one queued message.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// addFlash queues flashes for the next rendered page. Flashes already
// queued by an earlier redirect are kept. Queue everything for one response
// in a single call; a second call replaces the first cookie.
func addFlash(w http.ResponseWriter, r *http.Request, add ...Flash) {
	flashes := append(readFlashes(r), add...)
	if len(flashes) > maxFlashes {
		flashes = flashes[len(flashes)-maxFlashes:]
	}

	raw, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes returns the queued flashes and clears the cookie.
func popFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := readFlashes(r)
	if len(flashes) > 0 {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return flashes
}

// readFlashes decodes the flash cookie. A missing or corrupt cookie is no
// flashes.
func readFlashes(r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		return nil
	}
	return flashes
}
