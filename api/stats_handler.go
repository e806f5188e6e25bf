package api

import (
	"net/http"
)

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	s, err := a.eng.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
