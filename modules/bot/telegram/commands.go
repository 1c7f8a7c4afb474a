package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Commands is the menu registered with setMyCommands at start.
var Commands = []BotCommand{
	{Command: "help", Description: "show instructions"},
	{Command: "ping", Description: "check if I'm alive"},
	{Command: "start", Description: "visit the official guild website"},
	{Command: "groupid", Description: "shows the ID of the group"},
	{Command: "add", Description: "add Guild bot to your group"},
}

const helpText = "Hello there! I'm the Guild bot.\n" +
	"I'm part of the [Guild](https://docs.guild.xyz/) project and " +
	"I am your personal assistant.\n" +
	"I will always let you know whether you can join a guild or " +
	"whether you were kicked from a guild.\n" +
	"\n" +
	"/help - show instructions\n" +
	"/ping - check if I'm alive\n" +
	"/start - visit the official guild website\n" +
	"/groupid - shows the ID of the group\n" +
	"/add - add Guild bot to your group\n" +
	"For more details about me read the documentation on " +
	"[github](https://github.com/agoraxyz/telegram-runner)."

const uninterpretable = "I'm sorry, but I couldn't interpret your request."

// adminRightsQuery is the rights list appended to the add-to-chat deep links.
const adminRightsQuery = "admin=post_messages+restrict_members+invite_users"

// parseCommand extracts the command name from a message that starts with a
// bot_command entity. Commands addressed to another bot are ignored.
func parseCommand(msg *Message, botUsername string) (string, bool) {
	if msg == nil || len(msg.Entities) == 0 {
		return "", false
	}
	e := msg.Entities[0]
	if e.Type != "bot_command" || e.Offset != 0 || e.Length < 2 || e.Length > len(msg.Text) {
		return "", false
	}
	name := msg.Text[1:e.Length]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		if !strings.EqualFold(name[at+1:], botUsername) {
			return "", false
		}
		name = name[:at]
	}
	return strings.ToLower(name), name != ""
}

func (d *Dispatcher) onMessage(ctx context.Context, msg *Message) {
	if cmd, ok := parseCommand(msg, d.botUser().Username); ok {
		d.runCommand(ctx, msg, cmd)
		return
	}
	if msg.Chat.Type != ChatPrivate || msg.Text == "" {
		return
	}
	if err := d.send(ctx, SendMessageRequest{ChatID: msg.Chat.ID, Text: uninterpretable}); err != nil {
		d.logger.Error("reply failed", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	more := fmt.Sprintf("You can find more information on the [Guild](%s) website.", d.config.WebsiteURL)
	if err := d.sendMarkdown(ctx, msg.Chat.ID, more, 0); err != nil {
		d.logger.Error("reply failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

// onChannelPost only answers /groupid; channels have no other commands.
func (d *Dispatcher) onChannelPost(ctx context.Context, post *Message) {
	if cmd, ok := parseCommand(post, d.botUser().Username); ok && cmd == "groupid" {
		d.runCommand(ctx, post, cmd)
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, msg *Message, cmd string) {
	var err error
	switch cmd {
	case "start":
		err = d.sendMarkdown(ctx, msg.Chat.ID,
			fmt.Sprintf("Visit the [Guild website](%s) to join guilds", d.config.WebsiteURL), 0)
	case "help":
		err = d.send(ctx, SendMessageRequest{
			ChatID:                msg.Chat.ID,
			Text:                  FormatMarkdownV2(helpText),
			ParseMode:             "MarkdownV2",
			DisableWebPagePreview: true,
		})
	case "ping":
		err = d.ping(ctx, msg)
	case "groupid":
		err = d.sendMarkdown(ctx, msg.Chat.ID, fmt.Sprintf("`%d`", msg.Chat.ID), msg.MessageID)
	case "add":
		err = d.send(ctx, SendMessageRequest{
			ChatID:      msg.Chat.ID,
			Text:        "Click to add Guild bot to your group",
			ReplyMarkup: addKeyboard(d.botUser().Username),
		})
	default:
		d.logger.Debug("unknown command", "command", cmd, "chat_id", msg.Chat.ID)
		return
	}
	if err != nil {
		d.logger.Error("command failed", "command", cmd, "chat_id", msg.Chat.ID, "error", err)
	}
}

func (d *Dispatcher) ping(ctx context.Context, msg *Message) error {
	now := time.Now()
	messageLatency := now.Sub(time.Unix(int64(msg.Date), 0)).Milliseconds()
	if _, err := d.client.GetMe(ctx); err != nil {
		return err
	}
	apiLatency := time.Since(now).Milliseconds()
	return d.sendMarkdown(ctx, msg.Chat.ID,
		fmt.Sprintf("Pong. The message latency is %dms. Bot API latency is %dms.", messageLatency, apiLatency), 0)
}

func addKeyboard(botUsername string) *InlineKeyboardMarkup {
	base := "https://t.me/" + botUsername
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
		{Text: "Add Guild bot to group", URL: base + "?startgroup=true&" + adminRightsQuery},
		{Text: "Add Guild bot to channel", URL: base + "?startchannel&" + adminRightsQuery},
	}}}
}

func (d *Dispatcher) send(ctx context.Context, req SendMessageRequest) error {
	_, err := d.client.SendMessage(ctx, req)
	return err
}

func (d *Dispatcher) sendMarkdown(ctx context.Context, chatID int64, text string, replyTo int) error {
	return d.send(ctx, SendMessageRequest{
		ChatID:           chatID,
		Text:             FormatMarkdownV2(text),
		ParseMode:        "MarkdownV2",
		ReplyToMessageID: replyTo,
	})
}
