package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/provider"
)

// errStopped reports that the consumer stopped pulling chunks.
var errStopped = errors.New("consumer stopped reading")

// stepResult is what one model step produced.
type stepResult struct {
	text         strings.Builder
	calls        []api.ToolCall
	usage        *provider.Usage
	finishReason string

	// emitted is set once any chunk of the step reached the caller.
	emitted bool
}

// consumeStep reads one provider stream until it closes. Text deltas are
// passed to emit as they arrive; tool calls are collected in index order
// and never emitted. It returns errStopped when emit returns false and the
// stream error for ProviderEventError.
func consumeStep(ctx context.Context, ch <-chan provider.ProviderEvent, emit func(string) bool) (*stepResult, error) {
	res := &stepResult{}
	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return res, nil
			}
			switch ev.Type {
			case provider.ProviderEventTextDelta:
				if ev.Delta == "" {
					continue
				}
				res.text.WriteString(ev.Delta)
				res.emitted = true
				if !emit(ev.Delta) {
					return res, errStopped
				}

			case provider.ProviderEventToolCallDone:
				key := ev.ToolCallID
				if key == "" {
					key = "#" + strconv.Itoa(ev.ToolCallIndex)
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				id := ev.ToolCallID
				if id == "" {
					id = api.NewToolCallID()
				}
				res.calls = append(res.calls, api.ToolCall{
					ID:        id,
					Name:      ev.FunctionName,
					Arguments: ev.Delta,
				})
				debug.Log(debug.Engine, "tool call received",
					"tool", ev.FunctionName,
					"call_id", id,
					"arguments", debug.Truncate(ev.Delta, 200),
				)

			case provider.ProviderEventDone:
				if ev.Usage != nil {
					res.usage = ev.Usage
				}
				if ev.FinishReason != "" {
					res.finishReason = ev.FinishReason
				}

			case provider.ProviderEventError:
				if ev.Err == nil {
					return res, api.NewModelError("upstream stream failed")
				}
				return res, ev.Err
			}
		}
	}
}

// drain discards the rest of a stream so the producer goroutine can exit.
func drain(ch <-chan provider.ProviderEvent) {
	for range ch {
	}
}
