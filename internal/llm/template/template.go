// Package template renders assistant replies deterministically, without a
// language model. It backs greetings and the not-understood reply, and is
// the fallback whenever model-based rendering fails.
package template

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"OpenMCP-Dialog/internal/dialog"
	"OpenMCP-Dialog/internal/llm"
)

const (
	// Greeting 是问候语的固定回复。
	Greeting = "Hello! Happy to help. Do you have an HR question, such as leave, payroll, or your leave status?"
	// NotUnderstood 是无法识别意图时的固定回复。
	NotUnderstood = "Sorry, I did not understand. Would you like to ask about leave, payroll, or your leave status?"
	// PreviousDone 用于确认上一个任务已经完成。
	PreviousDone = "Your previous request has been completed."
)

// Renderer 是确定性的回复渲染器。
type Renderer struct{}

// New 创建 Renderer。
func New() *Renderer {
	return &Renderer{}
}

// Render 实现 llm.Renderer。
func (r *Renderer) Render(_ context.Context, req llm.RenderRequest) (string, error) {
	var lines []string
	if req.PreviousCompleted {
		lines = append(lines, PreviousDone)
	}

	switch {
	case len(req.Clarifications) > 0:
		for _, c := range req.Clarifications {
			lines = append(lines, fmt.Sprintf("To continue with %s I still need: %s.", c.Intent, strings.Join(c.Missing, ", ")))
		}
	case llm.OnlyFallback(req.Results) || len(req.Results) == 0:
		if llm.IsGreeting(req.UserMessage) {
			lines = append(lines, Greeting)
		} else {
			lines = append(lines, NotUnderstood)
		}
		if req.State.Awaiting() {
			lines = append(lines, fmt.Sprintf("We are still waiting for %s to complete %s.",
				strings.Join(req.State.PendingArgs, ", "), req.State.ActiveIntent))
		}
	default:
		lines = append(lines, summarize(req.Results)...)
	}
	return strings.Join(lines, "\n"), nil
}

func summarize(results dialog.Results) []string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		res := results[key]
		switch res.Status {
		case dialog.StatusSuccess:
			lines = append(lines, fmt.Sprintf("%s completed: %s", key, compact(res.Result)))
		case dialog.StatusError:
			lines = append(lines, fmt.Sprintf("%s failed: %s", key, res.Error))
		case dialog.StatusClarificationNeeded:
			lines = append(lines, fmt.Sprintf("%s still needs: %s.", key, strings.Join(res.Missing, ", ")))
		case dialog.StatusNotFound:
			lines = append(lines, fmt.Sprintf("No tool is available for '%s'.", res.Intent))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, NotUnderstood)
	}
	return lines
}

func compact(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
