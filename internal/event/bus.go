package event

// Handler receives the raw payload of a published event.
type Handler func(data []byte)

// Bus is the pub/sub backbone that drives live conversation and message
// queries. Store writers publish; feed subscriptions re-query on delivery.
// Delivery is asynchronous and at-most-once; consumers treat events as
// invalidation signals, not as data.
type Bus interface {
	Publish(subject string, data []byte) error
	// Subscribe registers a handler and returns an idempotent cancel func.
	Subscribe(subject string, h Handler) (func(), error)
	Close() error
}

// ConversationSubject is the per-user subject carrying conversation-list
// invalidations.
func ConversationSubject(userID string) string {
	return "chat.conversations." + userID
}

// MessageSubject is the per-conversation subject carrying message-feed
// invalidations.
func MessageSubject(conversationID string) string {
	return "chat.messages." + conversationID
}
