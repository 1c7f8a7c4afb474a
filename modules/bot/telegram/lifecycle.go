package telegram

import (
	"context"
	"fmt"
)

const (
	notSupergroupText = "This Group is currently not a Supergroup.\n" +
		"Please make sure to enable *all of the admin rights* for the bot."
	notAdminText    = "Please make sure to enable *all of the admin rights* for the bot."
	privateTypeText = "It is critically important to *set Group type to 'Private Group'* to create a functioning Guild"
)

// onMyChatMember reacts to changes of the bot's own membership.
func (d *Dispatcher) onMyChatMember(ctx context.Context, upd *ChatMemberUpdated) {
	chat := upd.Chat
	status := upd.NewChatMember.Status

	if chat.Type == ChatPrivate {
		if status == StatusKicked {
			d.logger.Warn("user has blocked the bot", "user_id", upd.From.ID)
			if h := d.membership(); h != nil {
				h.OnBotBlocked(ctx, upd.From)
			}
		}
		return
	}

	log := d.logger.With("chat_id", chat.ID, "chat_type", chat.Type, "status", status)
	if upd.OldChatMember.Status == status {
		log.Debug("bot membership unchanged")
		return
	}

	var err error
	switch status {
	case StatusAdministrator:
		if chat.Type == ChatGroup {
			err = d.sendSetupHint(ctx, chat, notSupergroupText)
		} else {
			err = d.sendGroupID(ctx, chat)
		}
	case StatusMember, StatusRestricted:
		err = d.sendSetupHint(ctx, chat, notAdminText)
	case StatusLeft, StatusKicked:
		log.Info("bot removed from chat")
		return
	}
	if err != nil {
		log.Error("sending setup messages failed", "error", err)
		return
	}
	log.Info("bot membership changed")
}

// sendGroupID walks an admin through binding the chat to a guild.
func (d *Dispatcher) sendGroupID(ctx context.Context, chat Chat) error {
	text := fmt.Sprintf("This is the group ID of \"%s\": `%d` .\nPaste it to the Guild creation interface!",
		chat.DisplayName(), chat.ID)
	if err := d.send(ctx, SendMessageRequest{ChatID: chat.ID, Text: text, ParseMode: "Markdown"}); err != nil {
		return err
	}
	if img := d.config.Media.ChatIDImage; img != "" {
		if _, err := d.client.SendPhoto(ctx, SendMediaRequest{ChatID: chat.ID, Media: img}); err != nil {
			return err
		}
	}
	return d.send(ctx, SendMessageRequest{ChatID: chat.ID, Text: privateTypeText, ParseMode: "Markdown"})
}

// sendSetupHint asks for admin rights and shows how to grant them.
func (d *Dispatcher) sendSetupHint(ctx context.Context, chat Chat, text string) error {
	if err := d.send(ctx, SendMessageRequest{ChatID: chat.ID, Text: text, ParseMode: "Markdown"}); err != nil {
		return err
	}
	video := d.config.Media.AdminGroupVideo
	if chat.Type == ChatChannel {
		video = d.config.Media.AdminChannelVideo
	}
	if video == "" {
		return nil
	}
	_, err := d.client.SendAnimation(ctx, SendMediaRequest{ChatID: chat.ID, Media: video})
	return err
}
