// Package memstore keeps every table of the sync engine in process
// memory. It satisfies the same contracts as the pgx repositories, and it
// publishes each committed row change to a realtime sink the way the
// database triggers do.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
)

// InterceptFunc runs before every operation, outside the store lock. A
// non-nil error fails the operation.
type InterceptFunc func(ctx context.Context, op string) error

type Store struct {
	mu        sync.Mutex
	sink      realtime.Sink
	intercept InterceptFunc
	now       func() time.Time
	last      time.Time
	logger    *slog.Logger

	profiles      map[string]models.Profile
	blocked       map[string][]string
	conversations map[string]models.Conversation
	messages      map[string]models.Message
	connections   map[string]models.Connection
	notifications map[string]models.Notification
	posts         map[string]models.PostSnapshot
	comments      map[string]models.CommentSnapshot
}

type Option func(*Store)

// WithSink publishes row changes to sink, usually a *realtime.Broker.
func WithSink(sink realtime.Sink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		logger:        slog.Default(),
		profiles:      make(map[string]models.Profile),
		blocked:       make(map[string][]string),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string]models.Message),
		connections:   make(map[string]models.Connection),
		notifications: make(map[string]models.Notification),
		posts:         make(map[string]models.PostSnapshot),
		comments:      make(map[string]models.CommentSnapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SetIntercept(fn InterceptFunc) {
	s.mu.Lock()
	s.intercept = fn
	s.mu.Unlock()
}

func (s *Store) Conversations() *Conversations { return &Conversations{s: s} }
func (s *Store) Messages() *Messages { return &Messages{s: s} }
func (s *Store) Profiles() *Profiles { return &Profiles{s: s} }
func (s *Store) Settings() *Settings { return &Settings{s: s} }
func (s *Store) Connections() *Connections { return &Connections{s: s} }
func (s *Store) Notifications() *Notifications { return &Notifications{s: s} }
func (s *Store) Content() *Content { return &Content{s: s} }

// AddProfile seeds a profile. An empty ID is assigned.
func (s *Store) AddProfile(profile models.Profile) models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = s.tick()
	}
	s.profiles[profile.ID] = profile
	return profile
}

func (s *Store) AddPost(post models.PostSnapshot) models.PostSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = s.tick()
	}
	s.posts[post.ID] = post
	return post
}

func (s *Store) AddComment(comment models.CommentSnapshot) models.CommentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = s.tick()
	}
	s.comments[comment.ID] = comment
	return comment
}

func (s *Store) before(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	fn := s.intercept
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, op)
}

// tick returns a strictly increasing timestamp so that rows written in
// sequence sort in write order. Callers hold s.mu.
func (s *Store) tick() time.Time {
	now := s.now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// publish forwards a row change to the sink. Callers hold s.mu so that
// changes reach the sink in commit order.
func (s *Store) publish(table string, eventType realtime.EventType, record, old any) {
	if s.sink == nil {
		return
	}
	change, err := realtime.NewChange(table, eventType, record, old)
	if err != nil {
		s.logger.Error("memstore encode change", "table", table, "type", eventType.String(), "error", err)
		return
	}
	s.sink.Publish(change)
}

func (s *Store) requireProfile(id string, constraint string) error {
	if _, ok := s.profiles[id]; !ok {
		return foreignKeyViolation(constraint)
	}
	return nil
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23503",
		Message:        fmt.Sprintf("insert or update violates foreign key constraint %q", constraint),
		ConstraintName: constraint,
	}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        fmt.Sprintf("duplicate key value violates unique constraint %q", constraint),
		ConstraintName: constraint,
	}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23514",
		Message:        fmt.Sprintf("new row violates check constraint %q", constraint),
		ConstraintName: constraint,
	}
}

func insufficientPrivilege(table string) error {
	return &pgconn.PgError{
		Severity:  "ERROR",
		Code:      "42501",
		Message:   fmt.Sprintf("new row violates row-level security policy for table %q", table),
		TableName: table,
	}
}

func samePair(a1, b1, a2, b2 string) bool {
	return (a1 == a2 && b1 == b2) || (a1 == b2 && b1 == a2)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortStrings(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
