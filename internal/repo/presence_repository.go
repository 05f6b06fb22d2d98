package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Intralink/internal/db"
	"Intralink/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var ErrPresenceNotFound = errors.New("presence record not found")

type presenceRepository struct {
	mongoRepo *db.Repository[model.UserPresence]
	logger    *zap.Logger
}

// PresenceRepository is the durable side of presence: one upserted document
// per user, kept forever as last-seen history.
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
	Touch(ctx context.Context, userID string, at time.Time) error
	Find(ctx context.Context, userID string) (*model.UserPresence, error)
	FindOnline(ctx context.Context) ([]model.UserPresence, error)
}

func NewPresenceRepository(repo *db.Repository[model.UserPresence], logger *zap.Logger) PresenceRepository {
	return &presenceRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *presenceRepository) SetOnline(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	_, err := r.mongoRepo.Upsert(ctx, filter, bson.M{
		"user_id":          userID,
		"is_online":        true,
		"last_activity_at": at,
	})
	if err != nil {
		return fmt.Errorf("set online failed: %w", err)
	}
	return nil
}

func (r *presenceRepository) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	_, err := r.mongoRepo.Upsert(ctx, filter, bson.M{
		"user_id":      userID,
		"is_online":    false,
		"last_seen_at": lastSeen,
	})
	if err != nil {
		return fmt.Errorf("set offline failed: %w", err)
	}

	r.logger.Debug("user marked offline", zap.String("user_id", userID))
	return nil
}

func (r *presenceRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	_, err := r.mongoRepo.Upsert(ctx, filter, bson.M{
		"user_id":          userID,
		"last_activity_at": at,
	})
	if err != nil {
		return fmt.Errorf("touch presence failed: %w", err)
	}
	return nil
}

func (r *presenceRepository) Find(ctx context.Context, userID string) (*model.UserPresence, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	p, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPresenceNotFound
		}
		return nil, fmt.Errorf("find presence failed: %w", err)
	}
	return p, nil
}

func (r *presenceRepository) FindOnline(ctx context.Context) ([]model.UserPresence, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("is_online", true).Build()
	return r.mongoRepo.FindAll(ctx, filter)
}
