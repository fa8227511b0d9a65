// Package session manages per-user conversation state on top of the
// storage layer. All dispatch for a user runs under that user's lock so
// concurrent webhook deliveries cannot interleave session writes.
package session

import (
	"context"
	"time"

	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// Store provides locked access to user sessions
type Store struct {
	db    *storage.DB
	locks *keyedLock
	log   *logger.Logger
}

// NewStore creates a session store backed by db
func NewStore(db *storage.DB, log *logger.Logger) *Store {
	return &Store{
		db:    db,
		locks: newKeyedLock(),
		log:   log.WithModule("session"),
	}
}

// Lock acquires the per-user lock and returns the release function.
// Callers must hold the lock for the whole dispatch of one inbound event.
func (s *Store) Lock(userID string) func() {
	return s.locks.Lock(userID)
}

// Get loads the user's session and applies lazy expiry: a flow whose
// deadline has passed is cleared before the session is returned, and
// expiredFlow names it so the caller can tell the user (empty when
// nothing expired). A user with no session row gets an empty session.
func (s *Store) Get(ctx context.Context, userID string) (sess *storage.Session, expiredFlow string, err error) {
	sess, err = s.db.GetSession(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return &storage.Session{UserID: userID}, "", nil
	}

	if sess.FlowName != "" && sess.ExpiresAt > 0 && sess.ExpiresAt < time.Now().Unix() {
		expiredFlow = sess.FlowName
		s.log.WithUserID(userID).Infof("flow %s expired, clearing", expiredFlow)
		if err := s.db.ClearFlowSession(ctx, userID); err != nil {
			return nil, "", err
		}
		sess.FlowName = ""
		sess.CurrentStep = ""
		sess.StepData = nil
		sess.ExpiresAt = 0
		return sess, expiredFlow, nil
	}

	return sess, "", nil
}

// StartFlow begins a flow for the user, discarding any previous flow
// state. The deadline is now plus the flow's configured timeout.
func (s *Store) StartFlow(ctx context.Context, userID, flowName, firstStep string, initialData map[string]string, timeout time.Duration) error {
	expiresAt := time.Now().Add(timeout).Unix()
	return s.db.StartFlowSession(ctx, userID, flowName, firstStep, initialData, expiresAt)
}

// Advance moves the user's flow to the next step with the given step
// data snapshot.
func (s *Store) Advance(ctx context.Context, userID, nextStep string, stepData map[string]string) error {
	return s.db.AdvanceSession(ctx, userID, nextStep, stepData)
}

// Clear ends the user's flow. Safe to call when no flow is active.
func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.db.ClearFlowSession(ctx, userID)
}

// Touch records inbound activity for the user.
func (s *Store) Touch(ctx context.Context, userID string) error {
	return s.db.TouchSession(ctx, userID)
}

// Sweep clears flow state from sessions that expired before now.
// Dispatch does not depend on this; it keeps the table tidy.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	return s.db.DeleteExpiredSessions(ctx, time.Now().Unix())
}

// ActiveFlows returns the number of sessions with a live flow, for the
// active-flow gauge.
func (s *Store) ActiveFlows(ctx context.Context) (int, error) {
	return s.db.CountActiveFlows(ctx)
}
