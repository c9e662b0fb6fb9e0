package sync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/crmsync/internal/model"
	"github.com/matheus3301/crmsync/internal/state"
	"github.com/matheus3301/crmsync/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys written after successful refreshes.
const (
	CheckpointChats = "chats.refreshed_at"
	CheckpointCalls = "calls.refreshed_at"
)

// Reconciler keeps the SQLite cache in step with the in-memory stores.
// A nil *store.DB turns every method into a no-op.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a reconciler over db.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger}
}

// WarmStart seeds chats from the cache so clients see the last known list
// before the first poll returns.
func (r *Reconciler) WarmStart(chats *state.ConversationStore) (int, error) {
	if r == nil || r.db == nil {
		return 0, nil
	}
	cached, err := r.db.LoadChats()
	if err != nil {
		return 0, fmt.Errorf("load cached chats: %w", err)
	}
	return chats.UpsertFromSnapshot(cached), nil
}

// SaveChats persists chats, logging instead of failing: the cache is best effort.
func (r *Reconciler) SaveChats(chats ...model.Chat) {
	if r == nil || r.db == nil || len(chats) == 0 {
		return
	}
	if err := r.db.SaveChats(chats); err != nil {
		r.logger.Warn("failed to cache chats", zap.Error(err), zap.Int("count", len(chats)))
	}
}

// MarkRefreshed records the time of a successful refresh under key.
func (r *Reconciler) MarkRefreshed(key string, at time.Time) {
	if r == nil || r.db == nil {
		return
	}
	if err := r.db.SetCheckpoint(key, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		r.logger.Warn("failed to write checkpoint", zap.Error(err), zap.String("key", key))
	}
}

// LastRefreshed returns when key was last marked, if ever.
func (r *Reconciler) LastRefreshed(key string) (time.Time, bool) {
	if r == nil || r.db == nil {
		return time.Time{}, false
	}
	v, ok, err := r.db.Checkpoint(key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
