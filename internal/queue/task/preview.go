package task

import (
	"context"
	"encoding/json"
	"time"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
	"jamiah-chat/internal/queue/port"
)

// UpdatePreviewTaskType is the queue task name for the best-effort
// conversation preview and last-activity update after a message send.
const UpdatePreviewTaskType = "chat:update_preview"

// UpdatePreviewPayload is the JSON payload transported via the queue.
type UpdatePreviewPayload struct {
	ConversationID string    `json:"conversationId"`
	Preview        string    `json:"preview"`
	ActivityAt     time.Time `json:"activityAt"`
	ParticipantIDs []string  `json:"participantIds"`
}

// RegisterUpdatePreviewTask binds the preview-update handler to the server.
// After persisting, it notifies each participant's conversation subject so
// open lists re-sort.
func RegisterUpdatePreviewTask(srv port.Server, convs domain.ConversationRepository, bus event.Bus) {
	srv.Register(UpdatePreviewTaskType, func(ctx context.Context, t port.Task) error {
		var p UpdatePreviewPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: retrying will not help
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := convs.UpdatePreview(ctx, p.ConversationID, p.Preview, p.ActivityAt); err != nil {
			return err
		}
		for _, uid := range p.ParticipantIDs {
			_ = bus.Publish(event.ConversationSubject(uid), []byte(p.ConversationID))
		}
		return nil
	})
}
