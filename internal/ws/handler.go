package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
	"jamiah-chat/internal/feed"
	"jamiah-chat/internal/security"
	"jamiah-chat/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

func userInParticipants(userID string, participantIDs []string) bool {
	for _, pid := range participantIDs {
		if pid == userID {
			return true
		}
	}
	return false
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol),
// attaches a per-connection feed session, then dispatches events:
//   - subscribe           -> start the live conversation list, push on every change
//   - search              -> apply a search term to the conversation list
//   - select_conversation -> switch the active message feed
//   - message             -> append & broadcast to conversation participants
//   - mark_read           -> mark all unread + broadcast messages_read
//   - typing              -> forward typing indicator to other participants
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	aggregator *feed.Aggregator,
	bus event.Bus,
	msgSvc *service.MessageService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID := security.Subject(claims)
		if userID == "" {
			http.Error(w, "invalid token subject", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByID(ctx, userID)
		if err != nil || user == nil || !user.IsActive {
			http.Error(w, "user not found or inactive", http.StatusUnauthorized)
			return
		}

		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(raw)
		defer conn.Close()

		session := feed.NewSession(aggregator, bus, func(ctx context.Context, conversationID, userID string) ([]*domain.Message, error) {
			return msgSvc.List(ctx, conversationID, userID, 0)
		}, user.ID)
		defer session.Close()

		if err := users.SetOnlineStatus(ctx, user.ID, true); err != nil {
			log.Printf("ws: set online for %s: %v", user.ID, err)
		}
		hub.Register(user.ID, conn)
		defer func() {
			hub.Unregister(user.ID, conn)
			if err := users.SetOnlineStatus(context.Background(), user.ID, false); err != nil {
				log.Printf("ws: set offline for %s: %v", user.ID, err)
			}
			hub.BroadcastAll(map[string]any{
				"type":     "user_offline",
				"user_id":  user.ID,
				"username": user.Username,
			})
		}()
		hub.BroadcastAll(map[string]any{
			"type":     "user_online",
			"user_id":  user.ID,
			"username": user.Username,
		})

		for {
			var payload map[string]any
			if err := conn.ws.ReadJSON(&payload); err != nil {
				break
			}
			msgType, _ := payload["type"].(string)
			switch msgType {

			// ── conversation list ────────────────────────────────────────────
			case "subscribe":
				err := session.Start(ctx, func(entries []*domain.ConversationListItem) {
					if entries == nil {
						entries = []*domain.ConversationListItem{}
					}
					if err := conn.WriteJSON(map[string]any{
						"type":          "conversation_list",
						"conversations": entries,
					}); err != nil {
						log.Printf("ws: push conversation list to %s: %v", user.ID, err)
					}
				})
				if err != nil {
					log.Printf("ws: subscribe for %s: %v", user.ID, err)
					sendError(conn, "failed to subscribe to conversation list")
				}

			case "search":
				term, _ := payload["term"].(string)
				session.Search(ctx, term)

			// ── active conversation ──────────────────────────────────────────
			case "select_conversation":
				convID, _ := payload["conversation_id"].(string)
				if convID == "" {
					sendError(conn, "select_conversation requires conversation_id")
					continue
				}
				participantIDs, err := msgSvc.ParticipantIDs(ctx, convID)
				if err != nil || !userInParticipants(user.ID, participantIDs) {
					sendError(conn, "not allowed for this conversation")
					continue
				}
				err = session.Select(ctx, convID, func(conversationID string, msgs []*domain.Message) {
					if msgs == nil {
						msgs = []*domain.Message{}
					}
					if err := conn.WriteJSON(map[string]any{
						"type":            "message_feed",
						"conversation_id": conversationID,
						"messages":        msgs,
					}); err != nil {
						log.Printf("ws: push message feed to %s: %v", user.ID, err)
					}
				})
				if err != nil {
					log.Printf("ws: select_conversation for %s: %v", user.ID, err)
					sendError(conn, "failed to attach message feed")
				}

			// ── send message ─────────────────────────────────────────────────
			case "message":
				convID, _ := payload["conversation_id"].(string)
				body, _ := payload["body"].(string)
				kind, _ := payload["kind"].(string)
				if convID == "" || body == "" {
					sendError(conn, "message requires conversation_id and non-empty body")
					continue
				}
				var readPtr *bool
				if v, ok := payload["read"].(bool); ok {
					readPtr = &v
				}
				msg, err := msgSvc.Send(ctx, service.SendInput{
					ConversationID: convID,
					Body:           body,
					Kind:           domain.MessageKind(kind),
					Read:           readPtr,
				}, user.ID)
				if err != nil {
					log.Printf("ws: send message: %v", err)
					sendError(conn, "failed to send message")
					continue
				}
				participantIDs, err := msgSvc.ParticipantIDs(ctx, convID)
				if err != nil {
					log.Printf("ws: get participants: %v", err)
					continue
				}
				hub.BroadcastToUsers(participantIDs, map[string]any{
					"type":            "message",
					"conversation_id": msg.ConversationID,
					"message_id":      msg.ID,
					"body":            msg.Body,
					"kind":            msg.Kind,
					"sender_id":       msg.SenderID,
					"sender_username": user.Username,
					"read":            msg.Read,
					"created_at":      msg.CreatedAt,
				})

			// ── mark read ────────────────────────────────────────────────────
			case "mark_read":
				convID, _ := payload["conversation_id"].(string)
				if convID == "" {
					continue
				}
				if err := msgSvc.MarkAllRead(ctx, convID, user.ID); err != nil {
					log.Printf("ws: mark_read: %v", err)
					sendError(conn, "failed to mark messages as read")
					continue
				}
				participantIDs, _ := msgSvc.ParticipantIDs(ctx, convID)
				hub.BroadcastToUsers(participantIDs, map[string]any{
					"type":            "messages_read",
					"conversation_id": convID,
					"user_id":         user.ID,
				})

			// ── typing indicator ─────────────────────────────────────────────
			case "typing":
				convID, _ := payload["conversation_id"].(string)
				if convID == "" {
					continue
				}
				participantIDs, err := msgSvc.ParticipantIDs(ctx, convID)
				if err != nil || !userInParticipants(user.ID, participantIDs) {
					sendError(conn, "not allowed for this conversation")
					continue
				}
				var others []string
				for _, pid := range participantIDs {
					if pid != user.ID {
						others = append(others, pid)
					}
				}
				hub.BroadcastToUsers(others, map[string]any{
					"type":            "typing",
					"conversation_id": convID,
					"user_id":         user.ID,
					"username":        user.Username,
				})

			default:
				log.Printf("ws: unknown event type %q from user %s", msgType, user.ID)
			}
		}
	}
}

func sendError(conn *Conn, msg string) {
	_ = conn.WriteJSON(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
