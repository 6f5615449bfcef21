package plugin

import (
	"time"

	"github.com/kbessonov/roomhub/internal/chat"
)

// HistoryClearCommand applies the edit-to-deleted transform to the
// whole room history.
type HistoryClearCommand struct {
	chat.BaseCommand
}

func NewHistoryClearCommand(room *chat.Room) *HistoryClearCommand {
	return &HistoryClearCommand{BaseCommand: chat.NewBaseCommand(room)}
}

func (c *HistoryClearCommand) Name() string      { return "historyclear" }
func (c *HistoryClearCommand) Aliases() []string { return []string{"hc"} }
func (c *HistoryClearCommand) MinRight() int     { return 30 }

func (c *HistoryClearCommand) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"historyclear": {CoolDown: 10 * time.Second},
		"hc":           {CoolDown: 10 * time.Second},
	}
}

func (c *HistoryClearCommand) Run(alias, param string, conn *chat.Connection) error {
	c.Room().ClearHistory()
	return nil
}
