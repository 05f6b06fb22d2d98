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
	"go.uber.org/zap"
)

var (
	ErrInvalidMessage        = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrMessageNotFound       = errors.New("message not found")
	ErrOperationTimeout      = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	messagePageSize = 50
)

type messageRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (string, error)
	FindByID(ctx context.Context, id string) (*model.Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	SetContent(ctx context.Context, id, content string, editedAt time.Time) error
	MarkUnsent(ctx context.Context, id string) error
	AddDeletedFor(ctx context.Context, id, userID string) error
	FindByConversation(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)
	CountUnread(ctx context.Context, conversationID, userID string) (int64, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
}

func NewMessageRepository(con *mongo.Database, repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		con:       con,
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if err := m.validateMessage(msg); err != nil {
		return "", err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
			}

			m.logger.Info("message inserted",
				zap.String("inserted_id", insertedID),
				zap.String("conversation_id", msg.ConversationID.Hex()),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID.Hex()),
	)

	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// Lookups
// -----------------------------------------------------------------------------

func (m *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msg, err := m.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("find message failed: %w", err)
	}
	return msg, nil
}

func (m *messageRepository) FindByConversation(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()

	result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: messagePageSize,
		SortBy:   "timestamp",
		SortDesc: false,
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}

	m.logger.Debug("messages filtered",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(result.Data)),
		zap.Int64("total", result.Total),
	)
	return result, nil
}

func (m *messageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	fb := db.NewFilter().
		Eq("is_read", false).
		Ne("sender_id", userID).
		NotContains("deleted_for", userID)
	if conversationID != "" {
		fb.ObjectID("conversation_id", conversationID)
	}

	return m.mongoRepo.Count(ctx, fb.Build())
}

// -----------------------------------------------------------------------------
// State transitions
// -----------------------------------------------------------------------------

func (m *messageRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{"is_read": true, "read_at": at})
	if err != nil {
		return fmt.Errorf("mark read failed: %w", err)
	}
	return nil
}

func (m *messageRepository) SetContent(ctx context.Context, id, content string, editedAt time.Time) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{
		"content":   content,
		"is_edited": true,
		"edited_at": editedAt,
	})
	if err != nil {
		return fmt.Errorf("edit message failed: %w", err)
	}
	return nil
}

func (m *messageRepository) MarkUnsent(ctx context.Context, id string) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// Content is cleared; the record stays for audit.
	_, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{
		"is_unsent":      true,
		"content":        "",
		"attachment_url": nil,
	})
	if err != nil {
		return fmt.Errorf("unsend message failed: %w", err)
	}
	return nil
}

func (m *messageRepository) AddDeletedFor(ctx context.Context, id, userID string) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// $addToSet keeps the operation idempotent.
	_, err := m.mongoRepo.ApplyByID(ctx, id, bson.M{
		"$addToSet": bson.M{"deleted_for": userID},
	})
	if err != nil {
		return fmt.Errorf("soft delete failed: %w", err)
	}
	return nil
}

func (m *messageRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()
	result, err := m.mongoRepo.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("cascade delete failed: %w", err)
	}

	m.logger.Info("conversation messages deleted",
		zap.String("conversation_id", conversationID),
		zap.Int64("count", result.DeletedCount),
	)
	return result.DeletedCount, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ConversationID.IsZero() {
		return ErrInvalidConversationID
	}
	return nil
}

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

func (m *messageRepository) handleReadError(err error, conversationID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("conversation_id", conversationID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("conversation_id", conversationID))
		return err
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("conversation_id", conversationID))
	return fmt.Errorf("filter messages failed: %w", err)
}
