package chat

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kbessonov/roomhub/pkg/chaterr"
)

// defaultWindow is the rolling window applied when a rule caps calls
// without naming a window length.
const defaultWindow = 10 * time.Second

// ParamRule validates one positional parameter.
type ParamRule struct {
	Name    string
	Pattern *regexp.Regexp
	// Info is the human-readable description used in rejection messages.
	Info string
}

// Rule is the declarative validation policy for one command alias.
type Rule struct {
	MinCount int
	// MaxCount bounds the parameter count; zero or negative means
	// unbounded.
	MaxCount int
	Params   []ParamRule
	// CoolDown is the minimum delay between two successful calls of
	// this alias by the same caller.
	CoolDown time.Duration
	// MaxCallsPerWindow caps calls per caller within Window
	// (defaultWindow when Window is zero). Zero disables the cap.
	MaxCallsPerWindow int
	Window            time.Duration
}

// Command is a named handler bound to a Room at construction time. One
// instance serves the canonical name and every alias.
type Command interface {
	Name() string
	Aliases() []string
	// Rules returns the per-alias validation policy. A missing alias
	// entry means no declarative constraints.
	Rules() map[string]*Rule
	MinRight() int
	OpOnly() bool
	Hidden() bool
	Run(alias, param string, conn *Connection) error
}

// Plugin is a Command that additionally participates in lifecycle
// hooks, ordered ascending by priority. Which hooks it provides is
// discovered through the capability interfaces in hooks.go.
type Plugin interface {
	Command
	Priority() int
}

// BaseCommand supplies the default command surface and the shared
// rate-limit state. Aliases of one command share these counters on
// purpose.
type BaseCommand struct {
	room *Room

	mu        sync.Mutex
	lastCalls map[string]time.Time
	windows   map[string][]time.Time
}

func NewBaseCommand(room *Room) BaseCommand {
	return BaseCommand{
		room:      room,
		lastCalls: make(map[string]time.Time),
		windows:   make(map[string][]time.Time),
	}
}

func (b *BaseCommand) Room() *Room            { return b.room }
func (b *BaseCommand) Aliases() []string      { return nil }
func (b *BaseCommand) Rules() map[string]*Rule { return nil }
func (b *BaseCommand) MinRight() int          { return 0 }
func (b *BaseCommand) OpOnly() bool           { return false }
func (b *BaseCommand) Hidden() bool           { return false }
func (b *BaseCommand) Priority() int          { return 0 }

// checkAndStamp enforces the cooldown and rolling-window caps for one
// alias/caller pair, recording the call when it is allowed. The stamp
// is committed before the handler body runs so a suspending handler
// cannot interleave past its own limit.
func (b *BaseCommand) checkAndStamp(alias string, rule *Rule, identifier string, now time.Time) error {
	if rule.CoolDown <= 0 && rule.MaxCallsPerWindow <= 0 {
		return nil
	}
	key := alias + "/" + identifier

	b.mu.Lock()
	defer b.mu.Unlock()

	if rule.CoolDown > 0 {
		if last, ok := b.lastCalls[key]; ok {
			if remaining := rule.CoolDown - now.Sub(last); remaining > 0 {
				return chaterr.Newf(chaterr.RateLimit,
					"please wait %s before using /%s again", remaining.Round(time.Millisecond), alias)
			}
		}
	}

	if rule.MaxCallsPerWindow > 0 {
		window := rule.Window
		if window <= 0 {
			window = defaultWindow
		}
		calls := b.windows[key]
		kept := calls[:0]
		for _, t := range calls {
			if now.Sub(t) < window {
				kept = append(kept, t)
			}
		}
		if len(kept) >= rule.MaxCallsPerWindow {
			b.windows[key] = kept
			return chaterr.Newf(chaterr.RateLimit,
				"/%s was called too many times within %s", alias, window)
		}
		b.windows[key] = append(kept, now)
	}

	if rule.CoolDown > 0 {
		b.lastCalls[key] = now
	}
	return nil
}

// rateLimited is satisfied by every command embedding BaseCommand.
type rateLimited interface {
	checkAndStamp(alias string, rule *Rule, identifier string, now time.Time) error
}

// splitParams splits a parameter string on single spaces. An empty
// string carries zero parameters.
func splitParams(param string) []string {
	if param == "" {
		return nil
	}
	return strings.Split(param, " ")
}

// validateRule checks the parameter count and positional patterns of
// one invocation against its alias rule.
func validateRule(alias, param string, rule *Rule) error {
	params := splitParams(param)
	if len(params) < rule.MinCount {
		return chaterr.Newf(chaterr.ParamCount, "/%s expects at least %d parameter(s)", alias, rule.MinCount)
	}
	if rule.MaxCount > 0 && len(params) > rule.MaxCount {
		return chaterr.Newf(chaterr.ParamCount, "/%s expects at most %d parameter(s)", alias, rule.MaxCount)
	}
	for i, pr := range rule.Params {
		if i >= len(params) {
			break
		}
		if pr.Pattern != nil && !pr.Pattern.MatchString(params[i]) {
			info := pr.Info
			if info == "" {
				info = pr.Pattern.String()
			}
			return chaterr.Newf(chaterr.ParamFormat, "invalid value for parameter %s (expected: %s)", pr.Name, info)
		}
	}
	return nil
}
