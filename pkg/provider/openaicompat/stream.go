package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/provider"
)

// maxSSELineSize bounds a single SSE line. A tool call carrying a whole
// Python program can exceed the bufio default of 64 KiB.
const maxSSELineSize = 1 << 20

// pendingCall accumulates the fragments of one streamed tool call.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// sseDecoder turns chunk payloads into provider events. Tool call
// fragments are forwarded as deltas and buffered until the step ends.
type sseDecoder struct {
	out   chan<- provider.ProviderEvent
	calls map[int]*pendingCall
}

// ParseSSEStream decodes a Chat Completions event stream from body and
// sends the resulting events on ch, which it leaves open.
//
// Only "data:" lines are read; comments and blank lines are skipped, as are
// payloads that are not valid JSON. "[DONE]" ends the stream. An error
// object in a chunk ends it with a ProviderEventError. Tool calls still
// buffered when the body ends without "[DONE]" are delivered. Nothing is
// sent after ctx is done.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.ProviderEvent) {
	d := &sseDecoder{out: ch, calls: map[int]*pendingCall{}}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			d.flushCalls()
			return
		}
		if !d.decode(data) {
			return
		}
	}

	if err := sc.Err(); err != nil {
		if ctx.Err() == nil {
			d.emit(provider.ProviderEvent{
				Type: provider.ProviderEventError,
				Err:  api.NewServerError("reading model stream: " + err.Error()),
			})
		}
		return
	}
	d.flushCalls()
}

// decode handles one payload and reports whether the stream continues.
func (d *sseDecoder) decode(data string) bool {
	var chunk ChatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		slog.Warn("skipping malformed SSE chunk",
			"error", err.Error(),
			"data", debug.Truncate(data, 200),
		)
		return true
	}
	if chunk.Error != nil {
		d.emit(provider.ProviderEvent{Type: provider.ProviderEventError, Err: MapStreamError(*chunk.Error)})
		return false
	}

	if len(chunk.Choices) == 0 {
		// trailing usage chunk
		if chunk.Usage != nil {
			d.emit(provider.ProviderEvent{Type: provider.ProviderEventDone, Usage: mapUsage(chunk.Usage)})
		}
		return true
	}

	// Gemini may send a whole tool call together with finish_reason, so
	// the delta is applied before the step is closed.
	choice := chunk.Choices[0]
	for _, frag := range choice.Delta.ToolCalls {
		d.addFragment(frag)
	}
	if c := choice.Delta.Content; c != nil && *c != "" {
		d.emit(provider.ProviderEvent{Type: provider.ProviderEventTextDelta, Delta: *c})
	}

	if choice.FinishReason != nil {
		d.flushCalls()
		d.emit(provider.ProviderEvent{Type: provider.ProviderEventTextDone})
		d.emit(provider.ProviderEvent{
			Type:         provider.ProviderEventDone,
			FinishReason: *choice.FinishReason,
			Usage:        mapUsage(chunk.Usage),
		})
	}
	return true
}

func (d *sseDecoder) addFragment(frag ChatChunkToolCall) {
	call := d.calls[frag.Index]
	if call == nil {
		call = &pendingCall{}
		d.calls[frag.Index] = call
	}
	if call.id == "" {
		call.id = frag.ID
	}
	if call.name == "" {
		call.name = frag.Function.Name
	}
	call.args.WriteString(frag.Function.Arguments)

	d.emit(provider.ProviderEvent{
		Type:          provider.ProviderEventToolCallDelta,
		ToolCallIndex: frag.Index,
		ToolCallID:    call.id,
		FunctionName:  frag.Function.Name,
		Delta:         frag.Function.Arguments,
	})
}

// flushCalls emits the buffered tool calls in index order.
func (d *sseDecoder) flushCalls() {
	indexes := make([]int, 0, len(d.calls))
	for i := range d.calls {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	for _, i := range indexes {
		call := d.calls[i]
		d.emit(provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallDone,
			ToolCallIndex: i,
			ToolCallID:    call.id,
			FunctionName:  call.name,
			Delta:         call.args.String(),
		})
	}
	clear(d.calls)
}

func (d *sseDecoder) emit(ev provider.ProviderEvent) {
	d.out <- ev
}

func mapUsage(u *ChatUsage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
