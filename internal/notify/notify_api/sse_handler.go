package notify_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-studyplanner/internal/auth"
	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/notify"
)

// SSEHandler serves the live-notification stream over Server-Sent Events.
type SSEHandler struct {
	Logger  *logger.Logger
	Emitter *notify.Emitter
}

func NewSSEHandler(log *logger.Logger, emitter *notify.Emitter) *SSEHandler {
	return &SSEHandler{
		Logger:  log,
		Emitter: emitter,
	}
}

// HandleStream streams the authenticated user's live notifications. The user
// is resolved from the request context when the route sits behind the auth
// middleware, otherwise from a token query parameter, since EventSource
// clients cannot set an Authorization header.
func (h *SSEHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		token := r.URL.Query().Get("token")
		uid, err := auth.ExtractUserIDFromJWT(token)
		if err != nil {
			h.Logger.Error("SSE", fmt.Sprintf("Stream auth failed: %v", err))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID = uid
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx := r.Context()
	notifChan := h.Emitter.Subscribe(ctx, userID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to notification stream for user: %s", userID))

	for {
		select {
		case n, ok := <-notifChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for user: %s", userID))
				return
			}

			jsonData, err := json.Marshal(n)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize notification: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from notification stream for user: %s", userID))
			return
		}
	}
}
