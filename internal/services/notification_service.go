package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

const (
	tableNotifications = "notifications"

	NotificationLimit = 20

	enrichConcurrency = 4
	actorSearchLimit  = 10
)

var leadingWord = regexp.MustCompile(`^\s*([\p{L}\p{N}'.-]+)`)

func notificationsTopic(userID string) string {
	return "notifications:" + userID
}

// NotificationService keeps the user's most recent notifications with
// their actor and related content resolved where possible.
type NotificationService struct {
	userID        string
	notifications NotificationStore
	profiles      ProfileReader
	content       ContentReader
	subs          subscriber
	logger        *slog.Logger
	emit          UpdateFunc

	mu         sync.Mutex
	generation uint64
	items      []models.Notification
}

func NewNotificationService(
	userID string,
	stores Stores,
	subs subscriber,
	logger *slog.Logger,
	emit UpdateFunc,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		userID:        userID,
		notifications: stores.Notifications,
		profiles:      stores.Profiles,
		content:       stores.Content,
		subs:          subs,
		logger:        logger.With("component", "notifications", "user_id", userID),
		emit:          emit,
	}
}

func (s *NotificationService) Watch() error {
	gen := s.currentGeneration()
	_, err := s.subs.Subscribe(
		notificationsTopic(s.userID),
		tableNotifications,
		realtime.Eq("user_id", s.userID),
		realtime.MaskAll,
		s.handler(gen),
	)
	return err
}

// Load fetches the most recent notifications and enriches them in
// parallel. Enrichment failures leave the affected fields empty.
func (s *NotificationService) Load(ctx context.Context) ([]models.Notification, error) {
	gen := s.currentGeneration()

	items, err := s.notifications.ListRecent(ctx, s.userID, NotificationLimit)
	if err != nil {
		return nil, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(enrichConcurrency)
	for i := range items {
		group.Go(func() error {
			s.enrich(groupCtx, &items[i])
			return nil
		})
	}
	_ = group.Wait()

	s.mu.Lock()
	if gen == s.generation {
		s.items = items
	}
	s.mu.Unlock()

	s.emit.emit(Update{Kind: UpdateNotifications})
	return append([]models.Notification{}, items...), nil
}

func (s *NotificationService) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification{}, s.items...)
}

func (s *NotificationService) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	unread := 0
	for _, item := range s.items {
		if !item.Read {
			unread++
		}
	}
	return unread
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID string) error {
	err := s.notifications.MarkRead(ctx, notificationID, s.userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotificationNotFound
	}
	if err != nil {
		return err
	}
	s.mutate(func(items []models.Notification) []models.Notification {
		for i := range items {
			if items[i].ID == notificationID {
				items[i].Read = true
			}
		}
		return items
	})
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context) error {
	if err := s.notifications.MarkAllRead(ctx, s.userID); err != nil {
		return err
	}
	s.mutate(func(items []models.Notification) []models.Notification {
		for i := range items {
			items[i].Read = true
		}
		return items
	})
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, notificationID string) error {
	err := s.notifications.Delete(ctx, notificationID, s.userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotificationNotFound
	}
	if err != nil {
		return err
	}
	s.mutate(func(items []models.Notification) []models.Notification {
		return removeNotification(items, notificationID)
	})
	return nil
}

func (s *NotificationService) ClearAll(ctx context.Context) error {
	if err := s.notifications.DeleteAll(ctx, s.userID); err != nil {
		return err
	}
	s.mutate(func([]models.Notification) []models.Notification {
		return nil
	})
	return nil
}

func (s *NotificationService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.items = nil
}

// mutate applies a local change without waiting for the push echo.
func (s *NotificationService) mutate(fn func([]models.Notification) []models.Notification) {
	s.mu.Lock()
	s.items = fn(s.items)
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateNotifications})
}

func (s *NotificationService) handler(gen uint64) realtime.Handler {
	return func(change realtime.Change) {
		item, err := realtime.Decode[models.Notification](change)
		if err != nil {
			s.logger.Warn("notification change decode failed", "error", err)
			return
		}

		switch change.Type {
		case realtime.EventInsert:
			s.onInsert(gen, item)
		case realtime.EventUpdate:
			s.onPatch(gen, func(items []models.Notification) ([]models.Notification, bool) {
				for i := range items {
					if items[i].ID == item.ID && items[i].Read != item.Read {
						items[i].Read = item.Read
						return items, true
					}
				}
				return items, false
			})
		case realtime.EventDelete:
			s.onPatch(gen, func(items []models.Notification) ([]models.Notification, bool) {
				kept := removeNotification(items, item.ID)
				return kept, len(kept) != len(items)
			})
		}
	}
}

func (s *NotificationService) onInsert(gen uint64, item models.Notification) {
	s.mu.Lock()
	if gen != s.generation || indexNotification(s.items, item.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), realtimeCallTimeout)
	s.enrich(ctx, &item)
	cancel()

	s.mu.Lock()
	if gen != s.generation || indexNotification(s.items, item.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.items = append([]models.Notification{item}, s.items...)
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].CreatedAt.After(s.items[j].CreatedAt)
	})
	if len(s.items) > NotificationLimit {
		s.items = s.items[:NotificationLimit]
	}
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateNotifications})
}

func (s *NotificationService) onPatch(gen uint64, fn func([]models.Notification) ([]models.Notification, bool)) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	var changed bool
	s.items, changed = fn(s.items)
	s.mu.Unlock()
	if changed {
		s.emit.emit(Update{Kind: UpdateNotifications})
	}
}

// enrich resolves the actor and the related post or comment of item.
func (s *NotificationService) enrich(ctx context.Context, item *models.Notification) {
	if actor, err := s.resolveActor(ctx, item); err != nil {
		s.logger.Debug("notification actor unresolved", "notification_id", item.ID, "error", err)
	} else {
		item.Actor = actor
	}

	if item.RelatedEntityType == nil || item.RelatedEntityID == nil {
		return
	}
	switch *item.RelatedEntityType {
	case models.RelatedEntityPost:
		post, err := s.content.GetPost(ctx, *item.RelatedEntityID)
		if err != nil {
			s.logger.Debug("notification post unresolved", "notification_id", item.ID, "error", err)
			return
		}
		item.RelatedPost = post
	case models.RelatedEntityComment:
		comment, err := s.content.GetComment(ctx, *item.RelatedEntityID)
		if err != nil {
			s.logger.Debug("notification comment unresolved", "notification_id", item.ID, "error", err)
			return
		}
		item.RelatedComment = comment
	}
}

// resolveActor prefers the stored actor id. Older rows without one fall
// back to matching the message's leading name against profiles.
func (s *NotificationService) resolveActor(ctx context.Context, item *models.Notification) (*models.Profile, error) {
	if item.ActorID != nil && *item.ActorID != "" {
		return s.profiles.GetByID(ctx, *item.ActorID)
	}

	match := leadingWord.FindStringSubmatch(item.Message)
	if match == nil {
		return nil, pgx.ErrNoRows
	}
	candidates, err := s.profiles.SearchByName(ctx, match[1], actorSearchLimit)
	if err != nil {
		return nil, err
	}
	actor := pickActor(item.Message, candidates)
	if actor == nil {
		return nil, pgx.ErrNoRows
	}
	return actor, nil
}

// pickActor chooses among profiles matching a message's first word. A
// profile whose full name is the message's leading text wins, the longest
// such name first; otherwise the lowest id wins.
func pickActor(message string, candidates []models.Profile) *models.Profile {
	if len(candidates) == 0 {
		return nil
	}
	lowered := strings.ToLower(strings.TrimSpace(message))

	var best *models.Profile
	bestLen := 0
	for i := range candidates {
		name := strings.ToLower(strings.TrimSpace(candidates[i].FullName))
		if name == "" || !strings.HasPrefix(lowered, name) {
			continue
		}
		if rest := lowered[len(name):]; rest != "" && !strings.HasPrefix(rest, " ") {
			continue
		}
		if best == nil || len(name) > bestLen || (len(name) == bestLen && candidates[i].ID < best.ID) {
			best = &candidates[i]
			bestLen = len(name)
		}
	}
	if best != nil {
		return best
	}

	lowest := &candidates[0]
	for i := range candidates {
		if candidates[i].ID < lowest.ID {
			lowest = &candidates[i]
		}
	}
	return lowest
}

func (s *NotificationService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func indexNotification(items []models.Notification, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func removeNotification(items []models.Notification, id string) []models.Notification {
	if i := indexNotification(items, id); i >= 0 {
		return append(items[:i:i], items[i+1:]...)
	}
	return items
}
