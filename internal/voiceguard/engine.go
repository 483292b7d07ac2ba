package voiceguard

import (
	"context"
	"fmt"
	"log"

	"github.com/ent0n29/slotbot/internal/observability"
)

const (
	RuleF1 = "f1"
	RuleF2 = "f2"
)

// Member is a guild member as seen in a voice channel.
type Member struct {
	UserID  string
	RoleIDs []string
}

func (m Member) HasRole(roleID string) bool {
	for _, r := range m.RoleIDs {
		if r == roleID {
			return true
		}
	}
	return false
}

// VoiceStateChange is one voice presence transition. An empty
// AfterChannelID means the member left voice.
type VoiceStateChange struct {
	GuildID         string
	Member          Member
	BeforeChannelID string
	AfterChannelID  string
}

// Presence is the chat-platform view the engine needs.
type Presence interface {
	ChannelMembers(ctx context.Context, guildID, channelID string) ([]Member, error)
	Disconnect(ctx context.Context, guildID, userID string) error
}

type ConfigSource interface {
	Snapshot() Config
}

// Action is one disconnect the engine attempted.
type Action struct {
	Rule   string
	UserID string
	Err    error
}

type Engine struct {
	presence Presence
	config   ConfigSource
	metrics  *observability.Metrics
}

func NewEngine(presence Presence, config ConfigSource, metrics *observability.Metrics) *Engine {
	return &Engine{presence: presence, config: config, metrics: metrics}
}

// HandleVoiceState evaluates both rules for ev. Disconnect failures are
// logged and returned in the actions; they never stop the scan.
func (e *Engine) HandleVoiceState(ctx context.Context, ev VoiceStateChange) []Action {
	if ev.AfterChannelID == "" || ev.AfterChannelID == ev.BeforeChannelID {
		return nil
	}
	cfg := e.config.Snapshot()
	if !cfg.HasProtectedRole() {
		return nil
	}

	flags, restricted := cfg.Targets[ev.Member.UserID]
	isProtected := ev.Member.HasRole(cfg.ProtectedRoleID)
	if !(restricted && flags.F1) && !isProtected {
		return nil
	}

	members, err := e.presence.ChannelMembers(ctx, ev.GuildID, ev.AfterChannelID)
	if err != nil {
		log.Printf("voiceguard: list members of channel %s: %v", ev.AfterChannelID, err)
		return nil
	}

	var actions []Action
	if restricted && flags.F1 && anyOtherHolds(members, ev.Member.UserID, cfg.ProtectedRoleID) {
		actions = append(actions, e.disconnect(ctx, ev.GuildID, ev.Member.UserID, RuleF1))
	}
	if isProtected {
		for _, m := range members {
			if m.UserID == ev.Member.UserID {
				continue
			}
			if f, ok := cfg.Targets[m.UserID]; ok && f.F2 {
				actions = append(actions, e.disconnect(ctx, ev.GuildID, m.UserID, RuleF2))
			}
		}
	}
	return actions
}

func (e *Engine) disconnect(ctx context.Context, guildID, userID, rule string) Action {
	err := e.presence.Disconnect(ctx, guildID, userID)
	if err != nil {
		err = fmt.Errorf("disconnect %s: %w", userID, err)
		log.Printf("voiceguard: rule %s: %v", rule, err)
		e.metrics.ObserveVoiceGuard(rule, "error")
	} else {
		log.Printf("voiceguard: rule %s disconnected user %s in guild %s", rule, userID, guildID)
		e.metrics.ObserveVoiceGuard(rule, "disconnected")
	}
	return Action{Rule: rule, UserID: userID, Err: err}
}

func anyOtherHolds(members []Member, self, roleID string) bool {
	for _, m := range members {
		if m.UserID != self && m.HasRole(roleID) {
			return true
		}
	}
	return false
}
