package plugin

import (
	"github.com/kbessonov/roomhub/internal/chat"
)

// MessageCommand broadcasts plain chat content to the room. Lines not
// starting with '/' resolve to it implicitly.
type MessageCommand struct {
	chat.BaseCommand
}

func NewMessageCommand(room *chat.Room) *MessageCommand {
	return &MessageCommand{BaseCommand: chat.NewBaseCommand(room)}
}

func (c *MessageCommand) Name() string { return "message" }

func (c *MessageCommand) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"message": {MinCount: 1},
	}
}

func (c *MessageCommand) Run(alias, param string, conn *chat.Connection) error {
	_, err := c.Room().SendMessage(chat.SendMessageOptions{
		Author:     conn.Session().User(),
		Content:    param,
		Connection: conn,
	})
	return err
}
