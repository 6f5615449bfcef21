package plugin

import (
	"regexp"
	"sync"
	"time"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/poll"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

var votePattern = regexp.MustCompile(`^(y|n)$`)

// PollPlugin runs one poll at a time per room. /poll opens a question
// to the membership; /vote y|n records a vote until the timeout
// resolves the poll.
type PollPlugin struct {
	chat.BaseCommand

	timeout time.Duration

	mu      sync.Mutex
	current *poll.Poll
}

func NewPollPlugin(room *chat.Room) *PollPlugin {
	return &PollPlugin{
		BaseCommand: chat.NewBaseCommand(room),
		timeout:     30 * time.Second,
	}
}

func (p *PollPlugin) Name() string      { return "poll" }
func (p *PollPlugin) Aliases() []string { return []string{"vote"} }

func (p *PollPlugin) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"poll": {MinCount: 1, CoolDown: 2 * time.Second},
		"vote": {
			MinCount: 1,
			MaxCount: 1,
			Params:   []chat.ParamRule{{Name: "vote", Pattern: votePattern, Info: "y or n"}},
		},
	}
}

func (p *PollPlugin) Run(alias, param string, conn *chat.Connection) error {
	switch alias {
	case "vote":
		return p.handleVote(param, conn)
	default:
		return p.handlePoll(param, conn)
	}
}

func (p *PollPlugin) handlePoll(title string, conn *chat.Connection) error {
	room := p.Room()
	newPoll := poll.New(title, conn.Session().User().Username+" started a poll",
		room.IsOperator, poll.Options{Timeout: p.timeout})

	p.mu.Lock()
	if p.current != nil && p.current.State() != poll.StateFinished {
		p.mu.Unlock()
		return chaterr.New(chaterr.PollAlreadyStarted, "a poll is already running in this room")
	}
	p.current = newPoll
	p.mu.Unlock()

	// Started before the announcement goes out, so a vote arriving
	// right behind it is already accepted.
	if err := newPoll.Start(); err != nil {
		return err
	}
	room.Broadcast("poll", newPoll.Sanitized())

	go func() {
		newPoll.Wait()
		room.Broadcast("poll", newPoll.Sanitized())
	}()
	return nil
}

func (p *PollPlugin) handleVote(param string, conn *chat.Connection) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil || current.State() != poll.StateStarted {
		return chaterr.New(chaterr.UnknownCommand, "there is no poll to vote on")
	}
	current.RegisterVote(conn.Session().Identifier(), param == "y")
	p.Room().Broadcast("poll", current.Sanitized())
	return nil
}
