package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
	"jamiah-chat/internal/feed"
)

// fakeConvRepo implements domain.ConversationRepository with pluggable list
// sources; the remaining methods are unused by the feed.
type fakeConvRepo struct {
	byProvider func(ctx context.Context, userID string) ([]*domain.ConversationListItem, error)
	byTaker    func(ctx context.Context, userID string) ([]*domain.ConversationListItem, error)
	groups     func(ctx context.Context, userID string) ([]*domain.ConversationListItem, error)
}

func (f *fakeConvRepo) ListByProvider(ctx context.Context, userID string) ([]*domain.ConversationListItem, error) {
	if f.byProvider == nil {
		return nil, nil
	}
	return f.byProvider(ctx, userID)
}

func (f *fakeConvRepo) ListByTaker(ctx context.Context, userID string) ([]*domain.ConversationListItem, error) {
	if f.byTaker == nil {
		return nil, nil
	}
	return f.byTaker(ctx, userID)
}

func (f *fakeConvRepo) ListGroupsForUser(ctx context.Context, userID string) ([]*domain.ConversationListItem, error) {
	if f.groups == nil {
		return nil, nil
	}
	return f.groups(ctx, userID)
}

func (f *fakeConvRepo) Create(ctx context.Context, c *domain.Conversation, participantIDs []string) error {
	return nil
}

func (f *fakeConvRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return nil, nil
}

func (f *fakeConvRepo) FindDirectByKey(ctx context.Context, key string, contextKind *domain.ContextKind, contextID *string) (*domain.Conversation, error) {
	return nil, nil
}

func (f *fakeConvRepo) FindGroupByContext(ctx context.Context, contextKind domain.ContextKind, contextID string) (*domain.Conversation, error) {
	return nil, nil
}

func (f *fakeConvRepo) UpdatePreview(ctx context.Context, id, preview string, at time.Time) error {
	return nil
}

func (f *fakeConvRepo) MarkAsRead(ctx context.Context, conversationID, userID string) error {
	return nil
}

func item(id string, last time.Time) *domain.ConversationListItem {
	return &domain.ConversationListItem{
		Conversation: domain.Conversation{ID: id, LastActivity: last},
	}
}

func namedItem(id, topic, provider, taker string) *domain.ConversationListItem {
	return &domain.ConversationListItem{
		Conversation: domain.Conversation{ID: id, Topic: &topic},
		ProviderName: provider,
		TakerName:    taker,
	}
}

func TestMerge(t *testing.T) {
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("LaterSourceWinsOnDuplicateID", func(t *testing.T) {
		stale := item("a", jan)
		fresh := item("a", jun)

		merged := feed.Merge(
			[]*domain.ConversationListItem{stale},
			[]*domain.ConversationListItem{item("b", jan)},
			[]*domain.ConversationListItem{fresh},
		)

		assert.Len(t, merged, 2)
		byID := map[string]*domain.ConversationListItem{}
		for _, e := range merged {
			byID[e.ID] = e
		}
		assert.Same(t, fresh, byID["a"])
	})

	t.Run("KeepsFirstSeenOrder", func(t *testing.T) {
		merged := feed.Merge(
			[]*domain.ConversationListItem{item("a", jan), item("b", jan)},
			[]*domain.ConversationListItem{item("c", jan), item("a", jun)},
		)
		ids := []string{merged[0].ID, merged[1].ID, merged[2].ID}
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("EmptySources", func(t *testing.T) {
		assert.Empty(t, feed.Merge(nil, nil, nil))
	})
}

func TestSortByActivity(t *testing.T) {
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("MostRecentFirst", func(t *testing.T) {
		sorted := feed.SortByActivity([]*domain.ConversationListItem{
			item("old", jan),
			item("new", jun),
		})
		assert.Equal(t, "new", sorted[0].ID)
		assert.Equal(t, "old", sorted[1].ID)
	})

	t.Run("ZeroTimeSortsOldest", func(t *testing.T) {
		sorted := feed.SortByActivity([]*domain.ConversationListItem{
			item("unknown", time.Time{}),
			item("dated", jan),
		})
		assert.Equal(t, "dated", sorted[0].ID)
		assert.Equal(t, "unknown", sorted[1].ID)
	})

	t.Run("Idempotent", func(t *testing.T) {
		entries := []*domain.ConversationListItem{
			item("b", jan), item("a", jun), item("c", time.Time{}),
		}
		once := feed.SortByActivity(entries)
		twice := feed.SortByActivity(once)
		assert.Equal(t, once, twice)
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		entries := []*domain.ConversationListItem{item("old", jan), item("new", jun)}
		_ = feed.SortByActivity(entries)
		assert.Equal(t, "old", entries[0].ID)
	})
}

func TestFilter(t *testing.T) {
	entries := []*domain.ConversationListItem{
		namedItem("1", "Monthly savings circle", "Amina", "Bilal"),
		namedItem("2", "Support request", "Helpdesk", "Amina"),
		namedItem("3", "Payment schedule", "Carlos", "Dana"),
	}

	t.Run("BlankTermReturnsInputUnchanged", func(t *testing.T) {
		assert.Equal(t, entries, feed.Filter(entries, ""))
		assert.Equal(t, entries, feed.Filter(entries, "   "))
	})

	t.Run("MatchesTopicCaseInsensitively", func(t *testing.T) {
		got := feed.Filter(entries, "SAVINGS")
		assert.Len(t, got, 1)
		assert.Equal(t, "1", got[0].ID)
	})

	t.Run("MatchesEitherEndpointName", func(t *testing.T) {
		got := feed.Filter(entries, "amina")
		assert.Len(t, got, 2)
	})

	t.Run("NoMatch", func(t *testing.T) {
		assert.Empty(t, feed.Filter(entries, "zzz"))
	})
}

func TestSubscribe(t *testing.T) {
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("EmitsInitialSnapshot", func(t *testing.T) {
		bus := event.NewMemoryBus()
		defer bus.Close()
		repo := &fakeConvRepo{
			byProvider: func(context.Context, string) ([]*domain.ConversationListItem, error) {
				return []*domain.ConversationListItem{item("p1", jan)}, nil
			},
			byTaker: func(context.Context, string) ([]*domain.ConversationListItem, error) {
				return []*domain.ConversationListItem{item("t1", jun)}, nil
			},
		}
		agg := feed.NewAggregator(repo, bus)

		var mu sync.Mutex
		var last []*domain.ConversationListItem
		sub, err := agg.Subscribe(ctx, "u1", func(entries []*domain.ConversationListItem) {
			mu.Lock()
			last = entries
			mu.Unlock()
		})
		assert.NoError(t, err)
		defer sub.Unsubscribe()

		mu.Lock()
		defer mu.Unlock()
		assert.Len(t, last, 2)
		assert.Equal(t, "t1", last[0].ID) // most recent first
	})

	t.Run("RefreshesOnBusEvent", func(t *testing.T) {
		bus := event.NewMemoryBus()
		defer bus.Close()

		var mu sync.Mutex
		current := []*domain.ConversationListItem{item("c1", jan)}
		repo := &fakeConvRepo{
			byProvider: func(context.Context, string) ([]*domain.ConversationListItem, error) {
				mu.Lock()
				defer mu.Unlock()
				return current, nil
			},
		}
		agg := feed.NewAggregator(repo, bus)

		emitted := make(chan int, 8)
		sub, err := agg.Subscribe(ctx, "u1", func(entries []*domain.ConversationListItem) {
			emitted <- len(entries)
		})
		assert.NoError(t, err)
		defer sub.Unsubscribe()
		assert.Equal(t, 1, <-emitted)

		mu.Lock()
		current = []*domain.ConversationListItem{item("c1", jan), item("c2", jun)}
		mu.Unlock()
		assert.NoError(t, bus.Publish(event.ConversationSubject("u1"), []byte("c2")))

		select {
		case n := <-emitted:
			assert.Equal(t, 2, n)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for refresh")
		}
	})

	t.Run("FailedSourceDegradesToEmpty", func(t *testing.T) {
		bus := event.NewMemoryBus()
		defer bus.Close()
		repo := &fakeConvRepo{
			byProvider: func(context.Context, string) ([]*domain.ConversationListItem, error) {
				return nil, errors.New("db down")
			},
			byTaker: func(context.Context, string) ([]*domain.ConversationListItem, error) {
				return []*domain.ConversationListItem{item("t1", jun)}, nil
			},
		}
		agg := feed.NewAggregator(repo, bus)

		var mu sync.Mutex
		var last []*domain.ConversationListItem
		sub, err := agg.Subscribe(ctx, "u1", func(entries []*domain.ConversationListItem) {
			mu.Lock()
			last = entries
			mu.Unlock()
		})
		assert.NoError(t, err)
		defer sub.Unsubscribe()

		mu.Lock()
		defer mu.Unlock()
		assert.Len(t, last, 1)
		assert.Equal(t, "t1", last[0].ID)
	})

	t.Run("SetSearchReEmitsFiltered", func(t *testing.T) {
		bus := event.NewMemoryBus()
		defer bus.Close()
		repo := &fakeConvRepo{
			byProvider: func(context.Context, string) ([]*domain.ConversationListItem, error) {
				return []*domain.ConversationListItem{
					namedItem("1", "Savings", "Amina", "Bilal"),
					namedItem("2", "Support", "Helpdesk", "Carlos"),
				}, nil
			},
		}
		agg := feed.NewAggregator(repo, bus)

		var mu sync.Mutex
		var last []*domain.ConversationListItem
		sub, err := agg.Subscribe(ctx, "u1", func(entries []*domain.ConversationListItem) {
			mu.Lock()
			last = entries
			mu.Unlock()
		})
		assert.NoError(t, err)
		defer sub.Unsubscribe()

		sub.SetSearch(ctx, "savings")
		mu.Lock()
		assert.Len(t, last, 1)
		assert.Equal(t, "1", last[0].ID)
		mu.Unlock()

		sub.SetSearch(ctx, "")
		mu.Lock()
		assert.Len(t, last, 2)
		mu.Unlock()
	})

	t.Run("UnsubscribeIsIdempotent", func(t *testing.T) {
		bus := event.NewMemoryBus()
		defer bus.Close()
		agg := feed.NewAggregator(&fakeConvRepo{}, bus)

		emitted := make(chan struct{}, 8)
		sub, err := agg.Subscribe(ctx, "u1", func([]*domain.ConversationListItem) {
			emitted <- struct{}{}
		})
		assert.NoError(t, err)
		<-emitted

		sub.Unsubscribe()
		sub.Unsubscribe()

		assert.NoError(t, bus.Publish(event.ConversationSubject("u1"), []byte("x")))
		select {
		case <-emitted:
			t.Fatal("emitted after unsubscribe")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
