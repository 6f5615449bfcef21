package plugin

import (
	"regexp"
	"strings"
	"time"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

var usernamePattern = regexp.MustCompile(`^\*?[a-zA-Z0-9]{1,16}$`)

// privateMessagePayload is the wire shape of a private message. Unlike
// room messages it never enters a history.
type privateMessagePayload struct {
	Content string              `json:"content"`
	User    store.SanitizedUser `json:"user"`
	To      store.SanitizedUser `json:"to"`
	Date    int64               `json:"date"`
}

// PrivateMessagePlugin delivers a message to every connection of one
// target session, plus back to the sender's own session.
type PrivateMessagePlugin struct {
	chat.BaseCommand
}

func NewPrivateMessagePlugin(room *chat.Room) *PrivateMessagePlugin {
	return &PrivateMessagePlugin{BaseCommand: chat.NewBaseCommand(room)}
}

func (p *PrivateMessagePlugin) Name() string { return "mp" }

func (p *PrivateMessagePlugin) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"mp": {
			MinCount: 2,
			CoolDown: 50 * time.Millisecond,
			Params:   []chat.ParamRule{{Name: "username", Pattern: usernamePattern, Info: "username"}},
		},
	}
}

func (p *PrivateMessagePlugin) Run(alias, param string, conn *chat.Connection) error {
	registry := p.Room().Deps().Sessions
	if registry == nil {
		return chaterr.New(chaterr.Collaborator, "session registry unavailable")
	}

	username, content, _ := strings.Cut(param, " ")
	target, ok := registry.Find(strings.ToLower(username))
	if !ok {
		return chaterr.Newf(chaterr.UnknownCommand, "user %s not found", username)
	}

	payload := privateMessagePayload{
		Content: content,
		User:    conn.Session().User().Sanitized(),
		To:      target.User().Sanitized(),
		Date:    time.Now().Unix(),
	}
	conn.Session().Send("private-message", payload)
	if target != conn.Session() {
		target.Send("private-message", payload)
	}
	return nil
}
