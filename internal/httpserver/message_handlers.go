package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/service"
	"jamiah-chat/internal/ws"
)

type messageCreateRequest struct {
	Body string `json:"body" validate:"required"`
	Kind string `json:"kind" validate:"omitempty,oneof=text image system"`
	Read *bool  `json:"read"`
}

func handleCreateMessage(msgSvc *service.MessageService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID := chi.URLParam(r, "conversationID")

		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		msg, err := msgSvc.Send(r.Context(), service.SendInput{
			ConversationID: conversationID,
			Body:           req.Body,
			Kind:           domain.MessageKind(req.Kind),
			Read:           req.Read,
		}, currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		if participantIDs, err := msgSvc.ParticipantIDs(r.Context(), conversationID); err == nil {
			hub.BroadcastToUsers(participantIDs, map[string]any{
				"type":            "message",
				"conversation_id": msg.ConversationID,
				"message_id":      msg.ID,
				"body":            msg.Body,
				"kind":            msg.Kind,
				"sender_id":       msg.SenderID,
				"read":            msg.Read,
				"created_at":      msg.CreatedAt,
			})
		}

		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID := chi.URLParam(r, "conversationID")

		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				limit = v
			}
		}

		msgs, err := msgSvc.List(r.Context(), conversationID, currentUser.ID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if msgs == nil {
			msgs = []*domain.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleMarkConversationRead(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID := chi.URLParam(r, "conversationID")
		if err := msgSvc.MarkAllRead(r.Context(), conversationID, currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
