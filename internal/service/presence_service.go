package service

import (
	"context"
	"time"

	"Intralink/internal/model"
	"Intralink/internal/repo"

	"go.uber.org/zap"
)

// PresenceService aggregates a user's online state across all of their live
// connections. A user with two tabs open stays online until the last
// connection closes; only the 0->1 and 1->0 edges touch the durable record
// and are reported back for broadcasting.
type PresenceService interface {
	Connect(ctx context.Context, userID, connectionID string) (wentOnline bool, err error)
	Disconnect(ctx context.Context, userID, connectionID string) (wentOffline bool, lastSeen time.Time, err error)
	Touch(ctx context.Context, userID string) error
	GetStatus(ctx context.Context, userID string) (*model.UserPresence, error)
	GetOnlineUsers(ctx context.Context) ([]model.UserPresence, error)
	Connections(ctx context.Context, userID string) ([]string, error)
}

type presenceService struct {
	conns  repo.ConnectionStore
	store  repo.PresenceRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewPresenceService(conns repo.ConnectionStore, store repo.PresenceRepository, logger *zap.Logger) PresenceService {
	return &presenceService{
		conns:  conns,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *presenceService) Connect(ctx context.Context, userID, connectionID string) (bool, error) {
	card, err := s.conns.Add(ctx, userID, connectionID)
	if err != nil {
		return false, err
	}

	wentOnline := card == 1
	if wentOnline {
		if err := s.store.SetOnline(ctx, userID, s.now().UTC()); err != nil {
			return true, err
		}
		s.logger.Info("user online",
			zap.String("user_id", userID),
			zap.String("connection_id", connectionID),
		)
	}
	return wentOnline, nil
}

func (s *presenceService) Disconnect(ctx context.Context, userID, connectionID string) (bool, time.Time, error) {
	card, err := s.conns.Remove(ctx, userID, connectionID)
	if err != nil {
		return false, time.Time{}, err
	}

	if card > 0 {
		// Other tabs/devices still connected.
		return false, time.Time{}, nil
	}

	lastSeen := s.now().UTC()
	if err := s.store.SetOffline(ctx, userID, lastSeen); err != nil {
		return true, lastSeen, err
	}

	s.logger.Info("user offline",
		zap.String("user_id", userID),
		zap.Time("last_seen", lastSeen),
	)
	return true, lastSeen, nil
}

func (s *presenceService) Touch(ctx context.Context, userID string) error {
	return s.store.Touch(ctx, userID, s.now().UTC())
}

func (s *presenceService) GetStatus(ctx context.Context, userID string) (*model.UserPresence, error) {
	return s.store.Find(ctx, userID)
}

func (s *presenceService) GetOnlineUsers(ctx context.Context) ([]model.UserPresence, error) {
	return s.store.FindOnline(ctx)
}

// Connections lists the user's live connection ids.
func (s *presenceService) Connections(ctx context.Context, userID string) ([]string, error) {
	return s.conns.Members(ctx, userID)
}
