package plugin

import (
	"html"
	"strings"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

// SanitizerPlugin normalizes inbound text before parsing and escapes
// HTML in message content before broadcast. Runs first in the pipeline.
type SanitizerPlugin struct {
	chat.BaseCommand
}

func NewSanitizerPlugin(room *chat.Room) *SanitizerPlugin {
	return &SanitizerPlugin{BaseCommand: chat.NewBaseCommand(room)}
}

func (p *SanitizerPlugin) Name() string  { return "sanitizer" }
func (p *SanitizerPlugin) Hidden() bool  { return true }
func (p *SanitizerPlugin) Priority() int { return -10 }

func (p *SanitizerPlugin) Run(alias, param string, conn *chat.Connection) error {
	return chaterr.New(chaterr.UnknownCommand, "this command cannot be invoked directly")
}

func (p *SanitizerPlugin) NewMessage(text string, conn *chat.Connection) (string, error) {
	return strings.TrimSpace(text), nil
}

func (p *SanitizerPlugin) BeforeMessageBroadcast(msg *chat.Message, conn *chat.Connection) (*chat.Message, error) {
	msg.Edit(html.EscapeString(msg.Content()))
	return msg, nil
}
