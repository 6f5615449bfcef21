// Package poll implements the voting primitive used by commands that
// need group or operator consensus.
package poll

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbessonov/roomhub/pkg/chaterr"
)

type State string

const (
	StatePending  State = "pending"
	StateStarted  State = "started"
	StateFinished State = "finished"
)

var currentPollID atomic.Int64

// Options configures how a poll resolves.
type Options struct {
	// DefaultValue is returned on an exact tie or a missed quorum.
	// nil means undecided.
	DefaultValue *bool
	// Timeout is how long the poll stays open after Complete.
	Timeout time.Duration
	// MinVotes is the quorum; zero means no quorum.
	MinVotes int
}

// Poll is a transient consensus object. State moves pending -> started
// -> finished, each transition exactly once.
type Poll struct {
	id      int64
	title   string
	content string
	options Options
	isOp    func(identifier string) bool

	mu     sync.Mutex
	state  State
	votes  map[string]bool
	opVote *bool
}

type Sanitized struct {
	ID       int64  `json:"id"`
	State    State  `json:"state"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Result   *bool  `json:"result"`
	YesCount int    `json:"yesCount"`
	NoCount  int    `json:"noCount"`
	OpVote   *bool  `json:"opVote"`
}

func New(title, content string, isOp func(identifier string) bool, options Options) *Poll {
	if isOp == nil {
		isOp = func(string) bool { return false }
	}
	return &Poll{
		id:      currentPollID.Add(1),
		title:   title,
		content: content,
		options: options,
		isOp:    isOp,
		state:   StatePending,
		votes:   map[string]bool{},
	}
}

func (p *Poll) ID() int64    { return p.id }
func (p *Poll) Title() string { return p.title }

func (p *Poll) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RegisterVote records a vote. An operator's vote becomes authoritative:
// it discards all recorded votes and silently ignores any later
// non-operator vote.
func (p *Poll) RegisterVote(identifier string, vote bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isOp(identifier) {
		v := vote
		p.opVote = &v
		p.votes = map[string]bool{}
		return
	}
	if p.opVote != nil {
		return
	}
	p.votes[identifier] = vote
}

// Result returns the poll outcome at this instant. nil means undecided.
func (p *Poll) Result() *bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result()
}

func (p *Poll) result() *bool {
	if p.opVote != nil {
		return p.opVote
	}
	if len(p.votes) == 0 {
		return nil
	}
	if p.options.MinVotes > 0 && len(p.votes) < p.options.MinVotes {
		return p.options.DefaultValue
	}
	yes, no := p.tally()
	if yes == no {
		return p.options.DefaultValue
	}
	v := yes > no
	return &v
}

func (p *Poll) tally() (yes, no int) {
	for _, vote := range p.votes {
		if vote {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

// Start transitions the poll from pending to started. Votes are
// accepted from this instant. A poll starts at most once.
func (p *Poll) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePending {
		return chaterr.New(chaterr.PollAlreadyStarted, "poll already started")
	}
	p.state = StateStarted
	return nil
}

// Wait blocks until the timeout elapses, then finishes the poll and
// returns the result at that instant.
func (p *Poll) Wait() *bool {
	timer := time.NewTimer(p.options.Timeout)
	<-timer.C

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateFinished
	return p.result()
}

func (p *Poll) Sanitized() Sanitized {
	p.mu.Lock()
	defer p.mu.Unlock()
	yes, no := p.tally()
	return Sanitized{
		ID:       p.id,
		State:    p.state,
		Title:    p.title,
		Content:  p.content,
		Result:   p.result(),
		YesCount: yes,
		NoCount:  no,
		OpVote:   p.opVote,
	}
}
