package plugin

import (
	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

// WelcomerPlugin delivers the visible history slice to connections
// joining the room.
type WelcomerPlugin struct {
	chat.BaseCommand
}

func NewWelcomerPlugin(room *chat.Room) *WelcomerPlugin {
	return &WelcomerPlugin{BaseCommand: chat.NewBaseCommand(room)}
}

func (p *WelcomerPlugin) Name() string { return "welcomer" }
func (p *WelcomerPlugin) Hidden() bool { return true }

func (p *WelcomerPlugin) Run(alias, param string, conn *chat.Connection) error {
	return chaterr.New(chaterr.UnknownCommand, "this command cannot be invoked directly")
}

func (p *WelcomerPlugin) ConnectionJoinedRoom(conn *chat.Connection) error {
	p.Room().SendHistory(conn)
	return nil
}
