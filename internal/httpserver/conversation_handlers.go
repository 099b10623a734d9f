package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/service"
)

// conversationResolveRequest is a conversation intent. Timestamps are accepted
// in any boundary form (RFC 3339 string, unix seconds or millis) and
// normalized on ingestion.
type conversationResolveRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	ProviderID     string   `json:"provider_id"`
	TakerID        string   `json:"taker_id"`
	Kind           *string  `json:"kind" validate:"omitempty,oneof=direct group"`
	ContextKind    *string  `json:"context_kind" validate:"omitempty,oneof=jamiah support payment-request"`
	ContextID      *string  `json:"context_id"`
	Topic          *string  `json:"topic"`
	CreatedAt      any      `json:"created_at"`
	LastActivity   any      `json:"last_activity"`
}

// resolveResponse reports whether the conversation was created or reused.
type resolveResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

func handleResolveConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		in := service.ResolveInput{
			ParticipantIDs: req.ParticipantIDs,
			ProviderID:     req.ProviderID,
			TakerID:        req.TakerID,
			ContextID:      req.ContextID,
			Topic:          req.Topic,
			CreatedAt:      req.CreatedAt,
			LastActivity:   req.LastActivity,
		}
		if req.Kind != nil {
			kind := domain.ConversationKind(*req.Kind)
			in.Kind = &kind
		}
		if req.ContextKind != nil {
			ck := domain.ContextKind(*req.ContextKind)
			in.ContextKind = &ck
		}

		conv, created, err := convSvc.Resolve(r.Context(), in, currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, resolveResponse{Conversation: conv, Created: created})
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		term := r.URL.Query().Get("q")
		convs, err := convSvc.List(r.Context(), currentUser.ID, term)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if convs == nil {
			convs = []*domain.ConversationListItem{}
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		id := chi.URLParam(r, "conversationID")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}
		conv, err := convSvc.Get(r.Context(), id, currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}
