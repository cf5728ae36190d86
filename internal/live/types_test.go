package live

import (
	"encoding/json"
	"testing"
)

func TestServerMessage_DecodeKinds(t *testing.T) {
	raw := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAA="}}]},"inputTranscription":{"text":"hi","finished":true}}}`
	var msg ServerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.ServerContent == nil || msg.ToolCall != nil {
		t.Fatalf("expected serverContent only")
	}
	if msg.ServerContent.ModelTurn.Parts[0].InlineData.Data != "AAA=" {
		t.Fatalf("inline data not decoded")
	}
	if tr := msg.ServerContent.InputTranscription; tr == nil || !tr.Finished || tr.Text != "hi" {
		t.Fatalf("transcription not decoded: %+v", tr)
	}
}

func TestServerMessage_DecodeToolCall(t *testing.T) {
	raw := `{"toolCall":{"functionCalls":[{"id":"c1","name":"log_recovery_event","args":{"reason":"patient asked"}}]}}`
	var msg ServerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.ToolCall == nil || len(msg.ToolCall.FunctionCalls) != 1 {
		t.Fatalf("expected one function call")
	}
	fc := msg.ToolCall.FunctionCalls[0]
	if fc.ID != "c1" || fc.Name != "log_recovery_event" {
		t.Fatalf("unexpected call: %+v", fc)
	}
}
