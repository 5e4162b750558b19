package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/kavia-common/deviceform/internal/routing"
)

const asOfLayout = "2006-01-02"

func currentUTCDateString() string {
	return time.Now().UTC().Format(asOfLayout)
}

// resolveAsOf reads the effective date from the query, defaulting to today
// (UTC) when absent. Option windows and status rules are keyed by this date.
func resolveAsOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	asOf := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if asOf == "" {
		asOf = currentUTCDateString()
	}
	if _, err := time.Parse(asOfLayout, asOf); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_as_of", "invalid as_of")
		return "", false
	}
	return asOf, true
}

func normalizeAsOf(raw string) (string, bool) {
	asOf := strings.TrimSpace(raw)
	if asOf == "" {
		return currentUTCDateString(), true
	}
	if _, err := time.Parse(asOfLayout, asOf); err != nil {
		return "", false
	}
	return asOf, true
}
