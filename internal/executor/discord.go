package executor

import (
	"context"
	"fmt"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/bus"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/tools"
)

// DiscordSendTool implements discord_send by publishing onto the shared
// outbound bus, the same path the teacher's discordgo channel consumes in
// internal/channels/discord.Channel.Send — the tool never touches the
// discordgo session directly, so the Discord credential and rate limiting
// stay owned by the channel adapter.
type DiscordSendTool struct {
	router bus.MessageRouter
}

func NewDiscordSendTool(router bus.MessageRouter) *DiscordSendTool {
	return &DiscordSendTool{router: router}
}

func (t *DiscordSendTool) Name() string { return "discord_send" }

func (t *DiscordSendTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	chatID, _ := args["chat_id"].(string)
	content, _ := args["content"].(string)
	if chatID == "" || content == "" {
		return tools.ErrorResult("discord_send requires chat_id and content")
	}

	msg := bus.OutboundMessage{Channel: "discord", ChatID: chatID, Content: content}
	if capStr, ok := args["caption"].(string); ok && capStr != "" {
		msg.Media = append(msg.Media, bus.MediaAttachment{Caption: capStr})
	}

	t.router.PublishOutbound(msg)
	return tools.SilentResult(fmt.Sprintf("sent to discord chat %s", chatID))
}
