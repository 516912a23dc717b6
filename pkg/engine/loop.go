package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/credential"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/observability"
	"github.com/rhuss/datagem/pkg/provider"
	"github.com/rhuss/datagem/pkg/tools"
)

// ErrToolLimit is returned when a user turn needs more tool calls than the
// configured maximum.
var ErrToolLimit = errors.New("tool call limit reached")

// runLoop executes model steps and tool calls until the model produces an
// answer without tool calls, the tool call limit is exceeded or an error
// ends the session.
func (e *Engine) runLoop(ctx context.Context, sess *Session, emit func(string) bool) error {
	maxCalls := e.cfg.maxToolCalls()

	if apiErr := provider.ValidateCapabilities(e.provider.Capabilities(), &provider.ProviderRequest{
		Stream: true,
		Tools:  provider.ToolsFromDefinitions(sess.Tools()),
	}); apiErr != nil {
		return apiErr
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sess.transition(StateAwaitingModel); err != nil {
			return err
		}

		res, err := e.runStep(ctx, sess, emit)
		if err != nil {
			return err
		}

		// No tool calls: final answer.
		if len(res.calls) == 0 {
			sess.Transcript.Append(api.ConversationTurn{
				Role:    api.RoleModel,
				Content: res.text.String(),
			})
			return sess.transition(StateDone)
		}

		if err := sess.transition(StateToolRequested); err != nil {
			return err
		}
		sess.Transcript.Append(api.ConversationTurn{
			Role:      api.RoleModel,
			Content:   res.text.String(),
			ToolCalls: res.calls,
		})

		if sess.ToolCalls()+len(res.calls) > maxCalls {
			return fmt.Errorf("%w: stopped after %d tool calls without a final answer", ErrToolLimit, sess.ToolCalls())
		}

		if err := sess.transition(StateToolExecuting); err != nil {
			return err
		}
		for _, call := range res.calls {
			if err := ctx.Err(); err != nil {
				return err
			}
			sess.Transcript.Append(e.executeTool(ctx, sess, call))
			sess.addToolCall()
		}
	}
}

// runStep streams one model step. Quota failures rotate the credential
// and retry the step, but only while none of its chunks reached the
// caller, so output is never duplicated.
func (e *Engine) runStep(ctx context.Context, sess *Session, emit func(string) bool) (*stepResult, error) {
	attempt := e.pool.Begin()
	maxRetries := e.cfg.quotaRetries()

	for retries := 0; ; retries++ {
		idx, slot, err := attempt.Acquire()
		if err != nil {
			return nil, err
		}
		sess.setSlot(idx)

		res, err := e.streamStep(ctx, sess, e.buildRequest(sess, slot.Key), emit)
		if err == nil {
			attempt.Succeed(idx)
			return res, nil
		}
		if errors.Is(err, errStopped) || ctx.Err() != nil {
			return nil, err
		}
		if !api.IsQuotaError(err) {
			return nil, err
		}

		attempt.Fail(idx, err)
		if res.emitted {
			return nil, err
		}
		if retries >= maxRetries {
			if attempt.Failed() >= e.pool.Len() {
				return nil, fmt.Errorf("%w: %w", credential.ErrExhausted, err)
			}
			return nil, err
		}
		debug.Log(debug.Engine, "retrying step with rotated credential",
			"session_id", sess.ID,
			"failed_slot", idx,
			"retry", retries+1,
		)
	}
}

// streamStep issues one streaming request and consumes it, recording
// provider metrics for the step.
func (e *Engine) streamStep(ctx context.Context, sess *Session, req *provider.ProviderRequest, emit func(string) bool) (*stepResult, error) {
	provName := e.provider.Name()
	start := time.Now()

	ch, err := e.provider.Stream(ctx, req)
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(provName, req.Model, "error").Inc()
		observability.ProviderLatency.WithLabelValues(provName, req.Model).Observe(time.Since(start).Seconds())
		return &stepResult{}, err
	}

	res, err := consumeStep(ctx, ch, func(chunk string) bool {
		if sess.State() != StateEmitting {
			if terr := sess.transition(StateEmitting); terr != nil {
				debug.Log(debug.Engine, "unexpected transition", "error", terr)
			}
		}
		return emit(chunk)
	})
	if err != nil {
		go drain(ch)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.ProviderRequestsTotal.WithLabelValues(provName, req.Model, status).Inc()
	observability.ProviderLatency.WithLabelValues(provName, req.Model).Observe(time.Since(start).Seconds())
	if res.usage != nil {
		observability.ProviderTokensTotal.WithLabelValues(provName, req.Model, "input").Add(float64(res.usage.InputTokens))
		observability.ProviderTokensTotal.WithLabelValues(provName, req.Model, "output").Add(float64(res.usage.OutputTokens))
	}

	debug.Log(debug.Providers, "model step finished",
		"session_id", sess.ID,
		"slot", sess.SlotIndex(),
		"status", status,
		"tool_calls", len(res.calls),
		"finish_reason", res.finishReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, err
}

// executeTool runs one call through the session registry and returns the
// tool turn answering it. Unknown tools and invalid arguments become error
// text so the model can correct itself.
func (e *Engine) executeTool(ctx context.Context, sess *Session, call api.ToolCall) api.ConversationTurn {
	turn := api.ConversationTurn{
		Role:       api.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}

	out, err := sess.registry.Invoke(ctx, call.Name, call.Arguments)
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		names := make([]string, 0, 2)
		for _, def := range sess.Tools() {
			names = append(names, string(def.Name))
		}
		turn.Content = fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", call.Name, strings.Join(names, ", "))
	case err != nil:
		turn.Content = "Error: " + err.Error()
	default:
		turn.Content = out
	}

	debug.Log(debug.Engine, "tool turn appended",
		"session_id", sess.ID,
		"tool", call.Name,
		"call_id", call.ID,
		"error", err,
		"output", debug.Truncate(turn.Content, 200),
	)
	return turn
}
