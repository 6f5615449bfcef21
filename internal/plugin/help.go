package plugin

import (
	"sort"
	"strings"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/store"
)

// HelpCommand sends the caller the list of visible commands.
type HelpCommand struct {
	chat.BaseCommand
}

func NewHelpCommand(room *chat.Room) *HelpCommand {
	return &HelpCommand{BaseCommand: chat.NewBaseCommand(room)}
}

func (c *HelpCommand) Name() string { return "help" }

func (c *HelpCommand) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"help": {MaxCount: 1},
	}
}

func (c *HelpCommand) Run(alias, param string, conn *chat.Connection) error {
	seen := map[string]bool{}
	var names []string
	for name, cmd := range c.Room().Commands() {
		if cmd.Name() != name || cmd.Hidden() || seen[cmd.Name()] {
			continue
		}
		seen[cmd.Name()] = true
		entry := "/" + cmd.Name()
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			entry += " (alias: /" + strings.Join(aliases, ", /") + ")"
		}
		names = append(names, entry)
	}
	sort.Strings(names)

	// The listing goes to the caller only and is never stored.
	info := chat.NewMessage(c.Room().ID, store.User{Username: "system"},
		"Available commands: "+strings.Join(names, ", "))
	conn.Send("message", info.Sanitized())
	return nil
}
