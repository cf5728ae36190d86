package tools

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/Swooye/FiveNursings-sub000/internal/live"
)

// LogIntentName is the function the model calls when it detects that the
// patient wants the conversation captured as a health-log entry.
const LogIntentName = "log_recovery_event"

// LogIntentDeclaration is the tool advertised to the model at setup.
func LogIntentDeclaration() live.FunctionDeclaration {
	return live.FunctionDeclaration{
		Name:        LogIntentName,
		Description: "Call when the user wants this conversation recorded as a recovery log entry.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"reason": {"type": "string", "description": "Why the user wants this logged."}
			}
		}`),
	}
}

type logIntentArgs struct {
	Reason string `json:"reason"`
}

// Interceptor watches backend tool calls for the logging intent. The first
// matching call fires onTrigger; later matches are acknowledged but change
// nothing. Unrecognized function names are ignored so new tools can be
// added server-side without breaking older clients.
type Interceptor struct {
	mu        sync.Mutex
	triggered bool
	onTrigger func(reason string)
}

// NewInterceptor creates an Interceptor invoking onTrigger on first match.
func NewInterceptor(onTrigger func(reason string)) *Interceptor {
	return &Interceptor{onTrigger: onTrigger}
}

// Intercept inspects a tool-call frame and returns the acknowledgments to
// send back. Every matched call is acknowledged with a static ok payload so
// the conversation is never left blocked on a response.
func (i *Interceptor) Intercept(tc live.ToolCall) (live.ToolResponse, bool) {
	var resp live.ToolResponse
	for _, call := range tc.FunctionCalls {
		if call.Name != LogIntentName {
			log.Printf("tools: ignoring unrecognized function call %q", call.Name)
			continue
		}
		var args logIntentArgs
		if len(call.Args) > 0 {
			if err := json.Unmarshal(call.Args, &args); err != nil {
				log.Printf("tools: unparsable args on %s: %v", call.Name, err)
			}
		}
		i.fire(args.Reason)
		resp.FunctionResponses = append(resp.FunctionResponses, live.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"result": "ok"},
		})
	}
	return resp, len(resp.FunctionResponses) > 0
}

func (i *Interceptor) fire(reason string) {
	i.mu.Lock()
	first := !i.triggered
	i.triggered = true
	cb := i.onTrigger
	i.mu.Unlock()
	if first {
		log.Printf("tools: logging intent detected (reason=%q)", reason)
		if cb != nil {
			cb(reason)
		}
	}
}

// Triggered reports whether the logging intent has been seen.
func (i *Interceptor) Triggered() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.triggered
}
