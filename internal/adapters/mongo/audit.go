package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/clock"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const auditCollection = "audit_logs"

// AuditLogger keeps an append-only trail of admission and purchase decisions.
type AuditLogger struct {
	coll   *mongo.Collection
	clock  clock.Clock
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, clk clock.Clock, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection(auditCollection),
		clock:  clk,
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id"`
	EventID   string    `bson:"event_id,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// EnsureIndexes creates the lookup indexes used by ForUser and ForEvent.
func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return errors.Wrap(err, "create audit indexes")
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		UserID:    userID,
		Timestamp: a.clock.Now(),
		Data:      bson.M{},
	}
	for k, v := range data {
		// uuid.UUID would be stored as a binary array.
		if id, ok := v.(uuid.UUID); ok {
			v = id.String()
		}
		log.Data[k] = v
	}
	if eventID, ok := log.Data["event_id"].(string); ok {
		log.EventID = eventID
	}

	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithField("action", action).WithError(err).Error("failed to insert audit log")
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

func (a *AuditLogger) ForUser(ctx context.Context, userID string, limit int64) ([]AuditLog, error) {
	return a.find(ctx, bson.M{"user_id": userID}, limit)
}

func (a *AuditLogger) ForEvent(ctx context.Context, eventID uuid.UUID, limit int64) ([]AuditLog, error) {
	return a.find(ctx, bson.M{"event_id": eventID.String()}, limit)
}

func (a *AuditLogger) find(ctx context.Context, filter bson.M, limit int64) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find audit logs")
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "decode audit logs")
	}
	return logs, nil
}
