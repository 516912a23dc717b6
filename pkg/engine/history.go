package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/storage"
)

// loadHistory prepends up to HistoryLimit persisted messages of the
// session identity to the transcript, oldest first. Only user and model
// messages are loaded. Storage failures are logged and the session
// continues without history.
func (e *Engine) loadHistory(ctx context.Context, sess *Session) {
	if e.store == nil || e.cfg.HistoryLimit <= 0 {
		return
	}

	uid, err := e.userID(ctx, sess)
	if err != nil {
		slog.Warn("resolving user for history failed", "session_id", sess.ID, "error", err)
		return
	}
	msgs, err := e.store.History(ctx, uid, e.cfg.HistoryLimit)
	if err != nil {
		slog.Warn("loading chat history failed", "session_id", sess.ID, "error", err)
		return
	}

	turns := historyTurns(msgs)
	sess.Transcript.Append(turns...)
	debug.Log(debug.Engine, "history loaded", "session_id", sess.ID, "turns", len(turns))
}

// historyTurns converts stored messages (newest first) into transcript
// turns in chronological order.
func historyTurns(msgs []storage.Message) []api.ConversationTurn {
	turns := make([]api.ConversationTurn, 0, len(msgs))
	for _, m := range slices.Backward(msgs) {
		if m.Role != api.RoleUser && m.Role != api.RoleModel {
			continue
		}
		turns = append(turns, api.ConversationTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
