package plugin

import (
	"strings"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

// KickCommand forces the disconnection of every connection of one
// session.
type KickCommand struct {
	chat.BaseCommand
}

func NewKickCommand(room *chat.Room) *KickCommand {
	return &KickCommand{BaseCommand: chat.NewBaseCommand(room)}
}

func (c *KickCommand) Name() string  { return "kick" }
func (c *KickCommand) MinRight() int { return 40 }

func (c *KickCommand) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"kick": {
			MinCount: 1,
			MaxCount: 1,
			Params:   []chat.ParamRule{{Name: "username", Pattern: usernamePattern, Info: "username"}},
		},
	}
}

func (c *KickCommand) Run(alias, param string, conn *chat.Connection) error {
	registry := c.Room().Deps().Sessions
	if registry == nil {
		return chaterr.New(chaterr.Collaborator, "session registry unavailable")
	}
	target, ok := registry.Find(strings.ToLower(param))
	if !ok {
		return chaterr.Newf(chaterr.UnknownCommand, "user %s not found", param)
	}
	for _, targetConn := range target.Connections() {
		targetConn.Close("you have been kicked")
	}
	return nil
}
