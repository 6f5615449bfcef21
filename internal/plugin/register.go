// Package plugin holds the concrete commands and plugins rooms are
// built from. RegisterAll populates the static chat registry once at
// startup; rooms then receive instances for their configured names.
package plugin

import (
	"sync"

	"github.com/kbessonov/roomhub/internal/chat"
)

var registerOnce sync.Once

// RegisterAll installs every built-in command factory. Safe to call
// more than once.
func RegisterAll() {
	registerOnce.Do(func() {
		chat.RegisterCommand("sanitizer", func(room *chat.Room) chat.Command { return NewSanitizerPlugin(room) })
		chat.RegisterCommand("welcomer", func(room *chat.Room) chat.Command { return NewWelcomerPlugin(room) })
		chat.RegisterCommand("message", func(room *chat.Room) chat.Command { return NewMessageCommand(room) })
		chat.RegisterCommand("help", func(room *chat.Room) chat.Command { return NewHelpCommand(room) })
		chat.RegisterCommand("mp", func(room *chat.Room) chat.Command { return NewPrivateMessagePlugin(room) })
		chat.RegisterCommand("motto", func(room *chat.Room) chat.Command { return NewMottoPlugin(room) })
		chat.RegisterCommand("kick", func(room *chat.Room) chat.Command { return NewKickCommand(room) })
		chat.RegisterCommand("setright", func(room *chat.Room) chat.Command { return NewSetRightCommand(room) })
		chat.RegisterCommand("historyclear", func(room *chat.Room) chat.Command { return NewHistoryClearCommand(room) })
		chat.RegisterCommand("poll", func(room *chat.Room) chat.Command { return NewPollPlugin(room) })
	})
}
