package feed

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
)

// ListFunc is one live-query source: a user-scoped conversation query that is
// re-run whenever the bus signals a change.
type ListFunc func(ctx context.Context, userID string) ([]*domain.ConversationListItem, error)

// EmitFunc receives a recomputed conversation list.
type EmitFunc func(entries []*domain.ConversationListItem)

// Aggregator maintains a de-duplicated, sorted, searchable conversation list
// per subscribed user, merged from three sources: conversations where the
// user is the provider, the taker, or a member of a group thread.
type Aggregator struct {
	sources []ListFunc
	bus     event.Bus
}

// NewAggregator wires the three repository queries as sources. Source order
// is fixed (provider, taker, group); the merge resolves duplicate IDs in
// favor of the later source.
func NewAggregator(convs domain.ConversationRepository, bus event.Bus) *Aggregator {
	return &Aggregator{
		sources: []ListFunc{
			convs.ListByProvider,
			convs.ListByTaker,
			convs.ListGroupsForUser,
		},
		bus: bus,
	}
}

// Merge unions the given lists keyed by conversation ID. Entries from later
// lists overwrite earlier ones with the same ID; first-seen order is kept.
func Merge(lists ...[]*domain.ConversationListItem) []*domain.ConversationListItem {
	byID := make(map[string]*domain.ConversationListItem)
	var order []string
	for _, list := range lists {
		for _, item := range list {
			if _, seen := byID[item.ID]; !seen {
				order = append(order, item.ID)
			}
			byID[item.ID] = item
		}
	}
	return lo.Map(order, func(id string, _ int) *domain.ConversationListItem {
		return byID[id]
	})
}

// SortByActivity returns a new slice ordered by last-activity descending.
// Zero instants (absent or unparseable timestamps) sort as the oldest.
// Applying it twice yields the same order.
func SortByActivity(entries []*domain.ConversationListItem) []*domain.ConversationListItem {
	out := make([]*domain.ConversationListItem, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Filter keeps entries whose topic or either endpoint display name contains
// the term, case-insensitively. A blank or whitespace-only term returns the
// input unchanged.
func Filter(entries []*domain.ConversationListItem, term string) []*domain.ConversationListItem {
	q := strings.ToLower(strings.TrimSpace(term))
	if q == "" {
		return entries
	}
	return lo.Filter(entries, func(e *domain.ConversationListItem, _ int) bool {
		if e.Topic != nil && strings.Contains(strings.ToLower(*e.Topic), q) {
			return true
		}
		return strings.Contains(strings.ToLower(e.ProviderName), q) ||
			strings.Contains(strings.ToLower(e.TakerName), q)
	})
}

// Subscription is the caller-owned handle of one live conversation list.
type Subscription struct {
	agg    *Aggregator
	userID string
	emit   EmitFunc

	mu     sync.Mutex
	term   string
	cancel func()
	closed bool
}

// Subscribe attaches the per-user live queries and emits an initial snapshot.
// Every bus emission for the user triggers a full recompute of the union.
func (a *Aggregator) Subscribe(ctx context.Context, userID string, emit EmitFunc) (*Subscription, error) {
	s := &Subscription{agg: a, userID: userID, emit: emit}
	cancel, err := a.bus.Subscribe(event.ConversationSubject(userID), func([]byte) {
		s.refresh(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: conversation list for user %s: %v", domain.ErrSubscriptionFailed, userID, err)
	}
	s.cancel = cancel
	s.refresh(ctx)
	return s, nil
}

// refresh re-runs all sources and emits the merged, sorted, filtered result.
// A failing source degrades to an empty list without aborting the others;
// partial data is preferred over no data.
func (s *Subscription) refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	lists := make([][]*domain.ConversationListItem, 0, len(s.agg.sources))
	for i, src := range s.agg.sources {
		items, err := src(ctx, s.userID)
		if err != nil {
			log.Printf("feed: conversation source %d for user %s: %v", i, s.userID, err)
			items = nil
		}
		lists = append(lists, items)
	}
	s.emit(Filter(SortByActivity(Merge(lists...)), s.term))
}

// SetSearch updates the search term and re-emits.
func (s *Subscription) SetSearch(ctx context.Context, term string) {
	s.mu.Lock()
	s.term = term
	s.mu.Unlock()
	s.refresh(ctx)
}

// Unsubscribe detaches the live queries. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
