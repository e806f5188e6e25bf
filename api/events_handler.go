package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/svetoslav0421/nocode-claude-ai/stream"
)

// streamEvents serves broker topics as server-sent events. Topics come from
// repeated ?topic= parameters and default to all job events.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	if a.broker == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event stream disabled"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		topics = []string{stream.TopicJobs}
	}
	for _, topic := range topics {
		if err := stream.ValidateTopic(topic); err != nil {
			a.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	subID := chimw.GetReqID(r.Context())
	if subID == "" {
		subID = fmt.Sprintf("sse-%d", time.Now().UnixNano())
	}
	sub := a.broker.Subscribe(subID, topics...)
	defer a.broker.RemoveSubscriber(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(a.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
