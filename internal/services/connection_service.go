package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

const tableConnections = "connections"

func connectionsTopic(side, userID string) string {
	return "connections:" + side + ":" + userID
}

// ConnectionService projects one user's side of the connection graph:
// requests they received, requests they sent, accepted connections and
// both directions of blocking.
type ConnectionService struct {
	userID        string
	connections   ConnectionStore
	settings      SettingsStore
	profiles      ProfileReader
	notifications NotificationStore
	subs          subscriber
	logger        *slog.Logger
	emit          UpdateFunc

	// blockMu serializes block-list read-modify-write cycles.
	blockMu sync.Mutex

	mu          sync.Mutex
	generation  uint64
	incoming    []models.Connection
	outgoing    []models.Connection
	accepted    []models.Connection
	blockedByMe []string
	blockedMe   []string
	selfName    string
}

func NewConnectionService(
	userID string,
	stores Stores,
	subs subscriber,
	logger *slog.Logger,
	emit UpdateFunc,
) *ConnectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{
		userID:        userID,
		connections:   stores.Connections,
		settings:      stores.Settings,
		profiles:      stores.Profiles,
		notifications: stores.Notifications,
		subs:          subs,
		logger:        logger.With("component", "connections", "user_id", userID),
		emit:          emit,
	}
}

// Watch subscribes the two sides of the graph separately: rows where the
// user is the receiver and rows where the user is the sender.
func (s *ConnectionService) Watch() error {
	gen := s.currentGeneration()

	_, receivedErr := s.subs.Subscribe(
		connectionsTopic("received", s.userID),
		tableConnections,
		realtime.Eq("receiver_id", s.userID),
		realtime.MaskAll,
		s.receivedHandler(gen),
	)
	_, sentErr := s.subs.Subscribe(
		connectionsTopic("sent", s.userID),
		tableConnections,
		realtime.Eq("sender_id", s.userID),
		realtime.MaskAll,
		s.sentHandler(gen),
	)
	if receivedErr != nil {
		return receivedErr
	}
	return sentErr
}

func (s *ConnectionService) Load(ctx context.Context) (models.ConnectionGraph, error) {
	gen := s.currentGeneration()

	var (
		rows        []models.Connection
		blockedByMe []string
		blockedMe   []string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		rows, err = s.connections.ListForUser(groupCtx, s.userID)
		return err
	})
	group.Go(func() error {
		var err error
		blockedByMe, blockedMe, err = s.loadBlocks(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return models.ConnectionGraph{}, err
	}
	s.resolveCounterparts(ctx, rows)

	var incoming, outgoing, accepted []models.Connection
	for _, row := range rows {
		switch {
		case row.Status == models.ConnectionAccepted:
			accepted = append(accepted, row)
		case row.ReceiverID == s.userID:
			incoming = append(incoming, row)
		default:
			outgoing = append(outgoing, row)
		}
	}

	s.mu.Lock()
	if gen == s.generation {
		s.incoming = incoming
		s.outgoing = outgoing
		s.accepted = accepted
		s.blockedByMe = blockedByMe
		s.blockedMe = blockedMe
	}
	s.mu.Unlock()

	s.emit.emit(Update{Kind: UpdateConnections})
	return s.Graph(), nil
}

func (s *ConnectionService) loadBlocks(ctx context.Context) ([]string, []string, error) {
	blockedByMe, err := s.settings.GetBlockedUsers(ctx, s.userID)
	if err != nil {
		return nil, nil, err
	}
	blockedMe, err := s.settings.ListBlockers(ctx, s.userID)
	if err != nil {
		return nil, nil, err
	}
	return blockedByMe, blockedMe, nil
}

// BlockedBetween reads both block-lists from the store, so a block made
// after Load is still honored.
func (s *ConnectionService) BlockedBetween(ctx context.Context, otherUserID string) (bool, error) {
	gen := s.currentGeneration()

	blockedByMe, blockedMe, err := s.loadBlocks(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if gen == s.generation {
		s.blockedByMe = blockedByMe
		s.blockedMe = blockedMe
	}
	s.mu.Unlock()

	return containsID(blockedByMe, otherUserID) || containsID(blockedMe, otherUserID), nil
}

// SendRequest creates a pending request to receiverID and notifies them.
func (s *ConnectionService) SendRequest(ctx context.Context, receiverID string) (*models.Connection, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" || receiverID == s.userID {
		return nil, apperrors.ErrSelfConnection
	}

	blocked, err := s.BlockedBetween(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperrors.ErrBlocked
	}

	existing, err := s.connections.FindBetween(ctx, s.userID, receiverID)
	switch {
	case err == nil:
		if existing.Status == models.ConnectionAccepted {
			return nil, apperrors.ErrAlreadyConnected
		}
		return nil, apperrors.ErrRequestAlreadySent
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, err
	}

	gen := s.currentGeneration()
	connection, err := s.connections.Create(ctx, s.userID, receiverID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, apperrors.WithCause(apperrors.ErrRequestAlreadySent, err)
			case "23503", "23514":
				return nil, apperrors.WithCause(apperrors.ErrConnectionNotFound, err)
			}
		}
		return nil, err
	}

	rows := []models.Connection{*connection}
	s.resolveCounterparts(ctx, rows)
	s.mu.Lock()
	if gen == s.generation {
		s.outgoing = upsertConnection(s.outgoing, rows[0])
	}
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateConnections})

	s.notify(ctx, receiverID, connection.ID, models.NotificationConnectionRequest, "sent you a connection request")
	return &rows[0], nil
}

// Accept turns a pending request addressed to the user into a connection
// and notifies the original sender.
func (s *ConnectionService) Accept(ctx context.Context, connectionID string) (*models.Connection, error) {
	gen := s.currentGeneration()

	connection, err := s.connections.Accept(ctx, connectionID, s.userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}

	rows := []models.Connection{*connection}
	s.resolveCounterparts(ctx, rows)
	s.mu.Lock()
	if gen == s.generation {
		s.incoming = removeConnection(s.incoming, connectionID)
		s.accepted = upsertConnection(s.accepted, rows[0])
	}
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateConnections})

	s.notify(ctx, connection.SenderID, connection.ID, models.NotificationConnectionAccepted, "accepted your connection request")
	return &rows[0], nil
}

// Reject deletes a pending request addressed to the user and notifies the
// sender.
func (s *ConnectionService) Reject(ctx context.Context, connectionID string) error {
	connection, err := s.pendingRow(ctx, connectionID, func(c *models.Connection) bool {
		return c.ReceiverID == s.userID
	})
	if err != nil {
		return err
	}
	if err := s.remove(ctx, connectionID); err != nil {
		return err
	}
	s.notify(ctx, connection.SenderID, connection.ID, models.NotificationConnectionRejected, "declined your connection request")
	return nil
}

// Cancel withdraws a pending request the user sent.
func (s *ConnectionService) Cancel(ctx context.Context, connectionID string) error {
	if _, err := s.pendingRow(ctx, connectionID, func(c *models.Connection) bool {
		return c.SenderID == s.userID
	}); err != nil {
		return err
	}
	return s.remove(ctx, connectionID)
}

// Remove deletes an accepted connection from either side.
func (s *ConnectionService) Remove(ctx context.Context, connectionID string) error {
	connection, err := s.connections.GetByID(ctx, connectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrConnectionNotFound
	}
	if err != nil {
		return err
	}
	if connection.Status != models.ConnectionAccepted ||
		(connection.SenderID != s.userID && connection.ReceiverID != s.userID) {
		return apperrors.ErrConnectionNotFound
	}
	return s.remove(ctx, connectionID)
}

func (s *ConnectionService) pendingRow(
	ctx context.Context,
	connectionID string,
	owns func(*models.Connection) bool,
) (*models.Connection, error) {
	connection, err := s.connections.GetByID(ctx, connectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	if connection.Status != models.ConnectionPending || !owns(connection) {
		return nil, apperrors.ErrConnectionNotFound
	}
	return connection, nil
}

func (s *ConnectionService) remove(ctx context.Context, connectionID string) error {
	gen := s.currentGeneration()

	err := s.connections.Delete(ctx, connectionID, s.userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrConnectionNotFound
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	if gen == s.generation {
		s.dropLocked(connectionID)
	}
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateConnections})
	return nil
}

// Block adds userID to the user's block-list. Existing connections and
// conversations are left alone.
func (s *ConnectionService) Block(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || userID == s.userID {
		return apperrors.ErrSelfConnection
	}
	return s.updateBlockList(ctx, func(blocked []string) []string {
		if containsID(blocked, userID) {
			return blocked
		}
		return append(blocked, userID)
	})
}

func (s *ConnectionService) Unblock(ctx context.Context, userID string) error {
	return s.updateBlockList(ctx, func(blocked []string) []string {
		kept := make([]string, 0, len(blocked))
		for _, id := range blocked {
			if id != userID {
				kept = append(kept, id)
			}
		}
		return kept
	})
}

func (s *ConnectionService) updateBlockList(ctx context.Context, change func([]string) []string) error {
	s.blockMu.Lock()
	defer s.blockMu.Unlock()
	gen := s.currentGeneration()

	current, err := s.settings.GetBlockedUsers(ctx, s.userID)
	if err != nil {
		return err
	}
	next := change(append([]string{}, current...))
	if err := s.settings.SetBlockedUsers(ctx, s.userID, next); err != nil {
		return err
	}

	s.mu.Lock()
	if gen == s.generation {
		s.blockedByMe = next
	}
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateConnections})
	return nil
}

// IsBlocked reports whether either side blocks userID, from the last
// loaded block-lists.
func (s *ConnectionService) IsBlocked(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsID(s.blockedByMe, userID) || containsID(s.blockedMe, userID)
}

// HiddenIdentities is the union of both block directions, sorted.
func (s *ConnectionService) HiddenIdentities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.blockedByMe)+len(s.blockedMe))
	hidden := make([]string, 0, len(s.blockedByMe)+len(s.blockedMe))
	for _, list := range [][]string{s.blockedByMe, s.blockedMe} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			hidden = append(hidden, id)
		}
	}
	sort.Strings(hidden)
	return hidden
}

func (s *ConnectionService) Graph() models.ConnectionGraph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ConnectionGraph{
		Incoming:    append([]models.Connection{}, s.incoming...),
		Outgoing:    append([]models.Connection{}, s.outgoing...),
		Connections: append([]models.Connection{}, s.accepted...),
		BlockedByMe: append([]string{}, s.blockedByMe...),
		BlockedMe:   append([]string{}, s.blockedMe...),
	}
}

func (s *ConnectionService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.incoming = nil
	s.outgoing = nil
	s.accepted = nil
	s.blockedByMe = nil
	s.blockedMe = nil
	s.selfName = ""
}

// receivedHandler applies rows where the user is the receiver: new rows
// are incoming requests, accepted rows become connections.
func (s *ConnectionService) receivedHandler(gen uint64) realtime.Handler {
	return func(change realtime.Change) {
		s.apply(gen, change, func(row models.Connection) {
			if row.Status == models.ConnectionAccepted {
				s.incoming = removeConnection(s.incoming, row.ID)
				s.accepted = upsertConnection(s.accepted, row)
				return
			}
			s.incoming = upsertConnection(s.incoming, row)
		})
	}
}

// sentHandler applies rows where the user is the sender: an accepted row
// moves an outgoing request to the connections.
func (s *ConnectionService) sentHandler(gen uint64) realtime.Handler {
	return func(change realtime.Change) {
		s.apply(gen, change, func(row models.Connection) {
			if row.Status == models.ConnectionAccepted {
				s.outgoing = removeConnection(s.outgoing, row.ID)
				s.accepted = upsertConnection(s.accepted, row)
				return
			}
			s.outgoing = upsertConnection(s.outgoing, row)
		})
	}
}

// apply runs the two phases of a connection event: counterpart lookup
// without the lock, then one locked update. Rows already in the
// projection with the same status are skipped.
func (s *ConnectionService) apply(gen uint64, change realtime.Change, upsert func(models.Connection)) {
	row, err := realtime.Decode[models.Connection](change)
	if err != nil {
		s.logger.Warn("connection change decode failed", "error", err)
		return
	}

	if change.Type == realtime.EventDelete {
		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		removed := s.dropLocked(row.ID)
		s.mu.Unlock()
		if removed {
			s.emit.emit(Update{Kind: UpdateConnections})
		}
		return
	}

	s.mu.Lock()
	if gen != s.generation || s.hasLocked(row.ID, row.Status) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), realtimeCallTimeout)
	rows := []models.Connection{row}
	s.resolveCounterparts(ctx, rows)
	cancel()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	upsert(rows[0])
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateConnections})
}

func (s *ConnectionService) hasLocked(id string, status models.ConnectionStatus) bool {
	for _, list := range [][]models.Connection{s.incoming, s.outgoing, s.accepted} {
		for _, connection := range list {
			if connection.ID == id && connection.Status == status {
				return true
			}
		}
	}
	return false
}

func (s *ConnectionService) dropLocked(id string) bool {
	before := len(s.incoming) + len(s.outgoing) + len(s.accepted)
	s.incoming = removeConnection(s.incoming, id)
	s.outgoing = removeConnection(s.outgoing, id)
	s.accepted = removeConnection(s.accepted, id)
	return len(s.incoming)+len(s.outgoing)+len(s.accepted) != before
}

// notify writes a notification for userID. Failures are logged; the
// connection change already happened.
func (s *ConnectionService) notify(ctx context.Context, userID, connectionID, kind, action string) {
	actorID := s.userID
	entityType := models.RelatedEntityConnection
	entityID := connectionID
	_, err := s.notifications.Create(ctx, models.NewNotification{
		UserID:            userID,
		ActorID:           &actorID,
		Message:           s.displayName(ctx) + " " + action,
		Type:              kind,
		RelatedEntityType: &entityType,
		RelatedEntityID:   &entityID,
	})
	if err != nil {
		s.logger.Warn("connection notification failed", "recipient_id", userID, "type", kind, "error", err)
	}
}

func (s *ConnectionService) displayName(ctx context.Context) string {
	s.mu.Lock()
	name := s.selfName
	s.mu.Unlock()
	if name != "" {
		return name
	}

	profile, err := s.profiles.GetByID(ctx, s.userID)
	if err != nil || strings.TrimSpace(profile.FullName) == "" {
		return "Someone"
	}
	s.mu.Lock()
	s.selfName = profile.FullName
	s.mu.Unlock()
	return profile.FullName
}

// resolveCounterparts fills Sender and Receiver. Lookup failures leave
// them empty.
func (s *ConnectionService) resolveCounterparts(ctx context.Context, rows []models.Connection) {
	if len(rows) == 0 {
		return
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Counterpart(s.userID))
	}
	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Debug("connection profiles unavailable", "error", err)
		return
	}
	byID := make(map[string]models.Profile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}
	for i := range rows {
		if profile, ok := byID[rows[i].SenderID]; ok {
			rows[i].Sender = &profile
		}
		if profile, ok := byID[rows[i].ReceiverID]; ok {
			rows[i].Receiver = &profile
		}
	}
}

func (s *ConnectionService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func upsertConnection(list []models.Connection, row models.Connection) []models.Connection {
	for i := range list {
		if list[i].ID == row.ID {
			if row.Sender == nil {
				row.Sender = list[i].Sender
			}
			if row.Receiver == nil {
				row.Receiver = list[i].Receiver
			}
			list[i] = row
			return list
		}
	}
	return append([]models.Connection{row}, list...)
}

func removeConnection(list []models.Connection, id string) []models.Connection {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
