package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
)

const (
	tableConnections   = "connections"
	tableNotifications = "notifications"
)

type Profiles struct {
	s *Store
}

func (r *Profiles) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	if err := r.s.before(ctx, "profiles.get"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	profile, ok := r.s.profiles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &profile, nil
}

func (r *Profiles) ListByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	if err := r.s.before(ctx, "profiles.list"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	profiles := make([]models.Profile, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if profile, ok := r.s.profiles[id]; ok {
			profiles = append(profiles, profile)
		}
	}
	return profiles, nil
}

func (r *Profiles) SearchByName(ctx context.Context, name string, limit int) ([]models.Profile, error) {
	if err := r.s.before(ctx, "profiles.search"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	profiles := make([]models.Profile, 0)
	for _, profile := range r.s.profiles {
		if containsFold(profile.FullName, name) {
			profiles = append(profiles, profile)
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	if limit > 0 && len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

type Settings struct {
	s *Store
}

func (r *Settings) GetBlockedUsers(ctx context.Context, userID string) ([]string, error) {
	if err := r.s.before(ctx, "settings.get_blocked"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]string{}, r.s.blocked[userID]...), nil
}

func (r *Settings) SetBlockedUsers(ctx context.Context, userID string, blocked []string) error {
	if err := r.s.before(ctx, "settings.set_blocked"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.requireProfile(userID, "user_settings_user_id_fkey"); err != nil {
		return err
	}
	r.s.blocked[userID] = append([]string{}, blocked...)
	return nil
}

func (r *Settings) ListBlockers(ctx context.Context, userID string) ([]string, error) {
	if err := r.s.before(ctx, "settings.list_blockers"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	blockers := make([]string, 0)
	for owner, blocked := range r.s.blocked {
		for _, id := range blocked {
			if id == userID {
				blockers = append(blockers, owner)
				break
			}
		}
	}
	return sortStrings(blockers), nil
}

type Connections struct {
	s *Store
}

func (r *Connections) ListForUser(ctx context.Context, userID string) ([]models.Connection, error) {
	if err := r.s.before(ctx, "connections.list"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	connections := make([]models.Connection, 0)
	for _, connection := range r.s.connections {
		if connection.SenderID == userID || connection.ReceiverID == userID {
			connections = append(connections, connection)
		}
	}
	sort.Slice(connections, func(i, j int) bool {
		if !connections[i].CreatedAt.Equal(connections[j].CreatedAt) {
			return connections[i].CreatedAt.After(connections[j].CreatedAt)
		}
		return connections[i].ID > connections[j].ID
	})
	return connections, nil
}

func (r *Connections) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	if err := r.s.before(ctx, "connections.get"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	connection, ok := r.s.connections[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &connection, nil
}

func (r *Connections) FindBetween(ctx context.Context, a, b string) (*models.Connection, error) {
	if err := r.s.before(ctx, "connections.find"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if connection, ok := r.s.findConnection(a, b); ok {
		return &connection, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *Connections) Create(ctx context.Context, senderID, receiverID string) (*models.Connection, error) {
	if err := r.s.before(ctx, "connections.create"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if senderID == receiverID {
		return nil, checkViolation("connections_distinct_parties")
	}
	if err := r.s.requireProfile(senderID, "connections_sender_id_fkey"); err != nil {
		return nil, err
	}
	if err := r.s.requireProfile(receiverID, "connections_receiver_id_fkey"); err != nil {
		return nil, err
	}
	if _, exists := r.s.findConnection(senderID, receiverID); exists {
		return nil, uniqueViolation("connections_pair_idx")
	}

	now := r.s.tick()
	connection := models.Connection{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.ConnectionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.s.connections[connection.ID] = connection
	r.s.publish(tableConnections, realtime.EventInsert, connection, nil)
	return &connection, nil
}

func (r *Connections) Accept(ctx context.Context, id, receiverID string) (*models.Connection, error) {
	if err := r.s.before(ctx, "connections.accept"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.connections[id]
	if !ok || old.ReceiverID != receiverID || old.Status != models.ConnectionPending {
		return nil, pgx.ErrNoRows
	}
	updated := old
	updated.Status = models.ConnectionAccepted
	updated.UpdatedAt = r.s.tick()
	r.s.connections[id] = updated
	r.s.publish(tableConnections, realtime.EventUpdate, updated, old)
	return &updated, nil
}

func (r *Connections) Delete(ctx context.Context, id, participantID string) error {
	if err := r.s.before(ctx, "connections.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	connection, ok := r.s.connections[id]
	if !ok || (connection.SenderID != participantID && connection.ReceiverID != participantID) {
		return pgx.ErrNoRows
	}
	delete(r.s.connections, id)
	r.s.publish(tableConnections, realtime.EventDelete, nil, connection)
	return nil
}

// Callers hold s.mu.
func (s *Store) findConnection(a, b string) (models.Connection, bool) {
	for _, connection := range s.connections {
		if samePair(connection.SenderID, connection.ReceiverID, a, b) {
			return connection, true
		}
	}
	return models.Connection{}, false
}

type Notifications struct {
	s *Store
}

func (r *Notifications) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if err := r.s.before(ctx, "notifications.list"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	notifications := r.s.notificationsOf(userID)
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (r *Notifications) Create(ctx context.Context, input models.NewNotification) (*models.Notification, error) {
	if err := r.s.before(ctx, "notifications.create"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.requireProfile(input.UserID, "notifications_user_id_fkey"); err != nil {
		return nil, err
	}
	if input.ActorID != nil {
		if err := r.s.requireProfile(*input.ActorID, "notifications_actor_id_fkey"); err != nil {
			return nil, err
		}
	}

	notification := models.Notification{
		ID:                uuid.NewString(),
		UserID:            input.UserID,
		ActorID:           input.ActorID,
		Message:           strings.TrimSpace(input.Message),
		Type:              input.Type,
		RelatedEntityType: input.RelatedEntityType,
		RelatedEntityID:   input.RelatedEntityID,
		CreatedAt:         r.s.tick(),
	}
	r.s.notifications[notification.ID] = notification
	r.s.publish(tableNotifications, realtime.EventInsert, notification, nil)
	return &notification, nil
}

func (r *Notifications) MarkRead(ctx context.Context, id, userID string) error {
	if err := r.s.before(ctx, "notifications.mark_read"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.notifications[id]
	if !ok || old.UserID != userID {
		return pgx.ErrNoRows
	}
	updated := old
	updated.Read = true
	r.s.notifications[id] = updated
	r.s.publish(tableNotifications, realtime.EventUpdate, updated, old)
	return nil
}

func (r *Notifications) MarkAllRead(ctx context.Context, userID string) error {
	if err := r.s.before(ctx, "notifications.mark_all_read"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, old := range r.s.notificationsOf(userID) {
		if old.Read {
			continue
		}
		updated := old
		updated.Read = true
		r.s.notifications[updated.ID] = updated
		r.s.publish(tableNotifications, realtime.EventUpdate, updated, old)
	}
	return nil
}

func (r *Notifications) Delete(ctx context.Context, id, userID string) error {
	if err := r.s.before(ctx, "notifications.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	notification, ok := r.s.notifications[id]
	if !ok || notification.UserID != userID {
		return pgx.ErrNoRows
	}
	delete(r.s.notifications, id)
	r.s.publish(tableNotifications, realtime.EventDelete, nil, notification)
	return nil
}

func (r *Notifications) DeleteAll(ctx context.Context, userID string) error {
	if err := r.s.before(ctx, "notifications.delete_all"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, notification := range r.s.notificationsOf(userID) {
		delete(r.s.notifications, notification.ID)
		r.s.publish(tableNotifications, realtime.EventDelete, nil, notification)
	}
	return nil
}

// notificationsOf returns userID's rows newest first. Callers hold s.mu.
func (s *Store) notificationsOf(userID string) []models.Notification {
	notifications := make([]models.Notification, 0)
	for _, notification := range s.notifications {
		if notification.UserID == userID {
			notifications = append(notifications, notification)
		}
	}
	sort.Slice(notifications, func(i, j int) bool {
		if !notifications[i].CreatedAt.Equal(notifications[j].CreatedAt) {
			return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
		}
		return notifications[i].ID > notifications[j].ID
	})
	return notifications
}

type Content struct {
	s *Store
}

func (r *Content) GetPost(ctx context.Context, id string) (*models.PostSnapshot, error) {
	if err := r.s.before(ctx, "content.get_post"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	post, ok := r.s.posts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &post, nil
}

func (r *Content) GetComment(ctx context.Context, id string) (*models.CommentSnapshot, error) {
	if err := r.s.before(ctx, "content.get_comment"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	comment, ok := r.s.comments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &comment, nil
}
