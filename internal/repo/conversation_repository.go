package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Intralink/internal/db"
	"Intralink/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var ErrConversationNotFound = errors.New("conversation not found")

type conversationRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

type ConversationRepository interface {
	Insert(ctx context.Context, conv *model.Conversation) (string, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByParticipant(ctx context.Context, userID string) ([]model.Conversation, error)
	FindDirectByKey(ctx context.Context, participantKey string) (*model.Conversation, error)
	SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error
	AddParticipant(ctx context.Context, id, userID string) error
	RemoveParticipant(ctx context.Context, id, userID string) error
	Delete(ctx context.Context, id string) error
}

func NewConversationRepository(con *mongo.Database, repo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	// Unique sparse index on the normalized participant key guards against
	// two simultaneous 1:1 creations racing to duplicate the pair.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.EnsureUniqueIndex(ctx, "participant_key"); err != nil {
		logger.Warn("participant_key index", zap.Error(err))
	}

	return &conversationRepository{
		con:       con,
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *conversationRepository) Insert(ctx context.Context, conv *model.Conversation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.Create(ctx, *conv)
	if err != nil {
		return "", fmt.Errorf("insert conversation failed: %w", err)
	}

	insertedID := ""
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		insertedID = oid.Hex()
	}

	r.logger.Info("conversation created",
		zap.String("conversation_id", insertedID),
		zap.Bool("is_group", conv.IsGroup),
		zap.Int("participants", len(conv.ParticipantIDs)),
	)
	return insertedID, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conv, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("find conversation failed: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) FindByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Contains("participant_ids", userID).Build()
	opts := options.Find().SetSort(bson.M{"updated_at": -1})

	convs, err := r.mongoRepo.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversations failed: %w", err)
	}
	return convs, nil
}

func (r *conversationRepository) FindDirectByKey(ctx context.Context, participantKey string) (*model.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participant_key", participantKey).Eq("is_group", false).Build()
	conv, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("find direct conversation failed: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.UpdateByID(ctx, id, bson.M{
		"last_message_id": messageID,
		"updated_at":      at,
	})
	if err != nil {
		return fmt.Errorf("update last message failed: %w", err)
	}
	return nil
}

func (r *conversationRepository) AddParticipant(ctx context.Context, id, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.ApplyByID(ctx, id, bson.M{
		"$addToSet": bson.M{"participant_ids": userID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("add participant failed: %w", err)
	}
	return nil
}

func (r *conversationRepository) RemoveParticipant(ctx context.Context, id, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.ApplyByID(ctx, id, bson.M{
		"$pull": bson.M{"participant_ids": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("remove participant failed: %w", err)
	}
	return nil
}

func (r *conversationRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.mongoRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete conversation failed: %w", err)
	}

	r.logger.Info("conversation deleted", zap.String("conversation_id", id))
	return nil
}
