package handler

import "net/http"

// HandleHealth is a liveness probe for load balancers and compose
// healthchecks. It does not touch the database.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
