package executor

import (
	"context"
	"testing"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/bus"
)

type fakeRouter struct {
	published []bus.OutboundMessage
}

func (r *fakeRouter) PublishInbound(msg bus.InboundMessage) {}
func (r *fakeRouter) ConsumeInbound(ctx context.Context) (bus.InboundMessage, bool) {
	return bus.InboundMessage{}, false
}
func (r *fakeRouter) PublishOutbound(msg bus.OutboundMessage) { r.published = append(r.published, msg) }
func (r *fakeRouter) SubscribeOutbound(ctx context.Context) (bus.OutboundMessage, bool) {
	return bus.OutboundMessage{}, false
}

func TestDiscordSendPublishesOutboundMessage(t *testing.T) {
	router := &fakeRouter{}
	tool := NewDiscordSendTool(router)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"chat_id": "12345",
		"content": "hello from the agent",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(router.published) != 1 {
		t.Fatalf("expected exactly one outbound message published")
	}
	if router.published[0].ChatID != "12345" || router.published[0].Channel != "discord" {
		t.Fatalf("unexpected published message: %+v", router.published[0])
	}
}

func TestDiscordSendRequiresChatIDAndContent(t *testing.T) {
	router := &fakeRouter{}
	tool := NewDiscordSendTool(router)

	res := tool.Execute(context.Background(), map[string]interface{}{"content": "no chat id"})
	if !res.IsError {
		t.Fatalf("expected error when chat_id is missing")
	}
	if len(router.published) != 0 {
		t.Fatalf("expected no publish on validation failure")
	}
}
