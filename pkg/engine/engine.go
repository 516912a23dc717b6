package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/credential"
	"github.com/rhuss/datagem/pkg/observability"
	"github.com/rhuss/datagem/pkg/provider"
	"github.com/rhuss/datagem/pkg/sandbox"
	"github.com/rhuss/datagem/pkg/storage"
	"github.com/rhuss/datagem/pkg/tools"
	"github.com/rhuss/datagem/pkg/tools/builtins/codeexec"
	"github.com/rhuss/datagem/pkg/transport"
)

// Ensure Engine implements transport.ChatHandler at compile time.
var _ transport.ChatHandler = (*Engine)(nil)

// persistTimeout bounds the writes made after a session ends.
const persistTimeout = 5 * time.Second

// Engine runs chat sessions against an upstream model. It is safe for
// concurrent use; all per-request state lives in the Session.
type Engine struct {
	provider provider.Provider
	pool     *credential.Pool
	runner   sandbox.Runner
	store    storage.Store
	cfg      Config
}

// New creates a new Engine. Provider, pool and runner must not be nil.
// The store can be nil, in which case nothing is persisted.
func New(p provider.Provider, pool *credential.Pool, runner sandbox.Runner, store storage.Store, cfg Config) (*Engine, error) {
	switch {
	case p == nil:
		return nil, fmt.Errorf("engine: provider must not be nil")
	case pool == nil:
		return nil, fmt.Errorf("engine: credential pool must not be nil")
	case runner == nil:
		return nil, fmt.Errorf("engine: sandbox runner must not be nil")
	case cfg.Model == "":
		return nil, fmt.Errorf("engine: model must not be empty")
	}
	return &Engine{
		provider: p,
		pool:     pool,
		runner:   runner,
		store:    store,
		cfg:      cfg,
	}, nil
}

// Registry builds the tool registry for a dataset. A nil dataset gives
// run_python_code a df of None.
func (e *Engine) Registry(dataset api.Dataset) *tools.Registry {
	r := tools.NewRegistry(codeexec.New(e.runner, dataset, e.cfg.SandboxTimeout))
	for _, p := range e.cfg.Tools {
		r.Register(p)
	}
	return r
}

// Stream starts a session for req. Work begins when the returned sequence
// is ranged over and stops when the caller breaks out of the loop or ctx
// is cancelled; either cancels the upstream stream and any running
// sandbox process. The sequence can be consumed once.
func (e *Engine) Stream(ctx context.Context, req *api.ChatRequest) (*Session, iter.Seq[string]) {
	sess := newSession(req.Identity, req.Dataset, e.Registry(req.Dataset))
	message := req.Message

	return sess, func(yield func(string) bool) {
		if !sess.begin() {
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		e.run(ctx, sess, message, yield)
	}
}

// Chat implements transport.ChatHandler. It announces the session, then
// forwards every chunk of the stream to w. A failed write ends the
// sequence, which cancels the upstream request and any running sandbox.
func (e *Engine) Chat(ctx context.Context, req *api.ChatRequest, w transport.ChunkWriter) error {
	sess, chunks := e.Stream(ctx, req)
	if err := w.Begin(sess.ID); err != nil {
		return err
	}
	for chunk := range chunks {
		if err := w.WriteChunk(chunk); err != nil {
			slog.Debug("client went away, stopping session", "session", sess.ID, "error", err)
			break
		}
	}
	return nil
}

// Tools returns the catalog offered to the model for a session without a
// dataset.
func (e *Engine) Tools() []tools.Definition {
	return e.Registry(nil).List()
}

// run drives one session to a terminal state.
func (e *Engine) run(ctx context.Context, sess *Session, message string, yield func(string) bool) {
	start := time.Now()

	var answer []byte
	stopped := false
	emit := func(chunk string) bool {
		answer = append(answer, chunk...)
		if !yield(chunk) {
			stopped = true
			return false
		}
		return true
	}

	slog.Debug("session started", "session_id", sess.ID, "rows", len(sess.Dataset))

	e.loadHistory(ctx, sess)
	sess.Transcript.Append(api.ConversationTurn{Role: api.RoleUser, Content: message})

	err := e.runLoop(ctx, sess, emit)

	outcome := "done"
	switch {
	case err == nil:
	case stopped || errors.Is(err, errStopped) || ctx.Err() != nil:
		outcome = "cancelled"
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		sess.fail(err)
		slog.Info("session cancelled", "session_id", sess.ID, "error", err)
	default:
		outcome = "failed"
		sess.fail(err)
		slog.Warn("session failed",
			"session_id", sess.ID,
			"tool_calls", sess.ToolCalls(),
			"error", err,
		)
		yield(api.DiagnosticPrefix + diagnosticMessage(err))
	}

	observability.SessionsTotal.WithLabelValues(outcome).Inc()
	slog.Debug("session finished",
		"session_id", sess.ID,
		"outcome", outcome,
		"tool_calls", sess.ToolCalls(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	e.persist(ctx, sess, message, string(answer))
}

// diagnosticMessage renders a session failure as user-facing text.
func diagnosticMessage(err error) string {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, ErrToolLimit):
		return err.Error()
	case errors.Is(err, credential.ErrExhausted):
		return "All API keys have exhausted their quota. Please try again later."
	case api.IsQuotaError(err):
		msg := err.Error()
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		return "API quota exceeded: " + msg
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}

// persist writes the user message and the model answer. Failures are
// logged only; the stream has already been delivered.
func (e *Engine) persist(ctx context.Context, sess *Session, message, answer string) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	uid, err := e.userID(ctx, sess)
	if err != nil {
		slog.Warn("resolving user for chat history failed", "session_id", sess.ID, "error", err)
		return
	}
	if err := e.store.AppendMessage(ctx, uid, api.RoleUser, message); err != nil {
		slog.Warn("saving user message failed", "session_id", sess.ID, "error", err)
		return
	}
	if answer == "" {
		return
	}
	if err := e.store.AppendMessage(ctx, uid, api.RoleModel, answer); err != nil {
		slog.Warn("saving model answer failed", "session_id", sess.ID, "error", err)
	}
}

// userID resolves the storage user of the session once.
func (e *Engine) userID(ctx context.Context, sess *Session) (storage.UserID, error) {
	if id, ok := sess.user(); ok {
		return id, nil
	}
	id, err := e.store.GetOrCreateUser(ctx, sess.Identity)
	if err != nil {
		return 0, err
	}
	sess.setUser(id)
	return id, nil
}
