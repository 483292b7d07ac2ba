// Package discord connects the bot to Discord through discordgo. It
// implements the chat gateway used by the payment and payout flows, the
// voice presence used by the voice guard, and slash-command routing.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/ent0n29/slotbot/internal/bot"
	"github.com/ent0n29/slotbot/internal/chat"
	"github.com/ent0n29/slotbot/internal/policy"
	"github.com/ent0n29/slotbot/internal/voiceguard"
)

// Intents requested on the gateway. Message content and guild members are
// privileged and must be enabled for the application.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// CommandHandler runs decoded slash commands.
type CommandHandler interface {
	HandleSlot(ctx context.Context, inv bot.SlotInvocation, r bot.Responder)
	HandleVoiceGuard(ctx context.Context, caller policy.Caller, cmd bot.AdminCommand, r bot.Responder)
	HandlePayouts(ctx context.Context, userID string, r bot.Responder)
}

// VoiceStateHandler reacts to voice presence transitions.
type VoiceStateHandler interface {
	HandleVoiceState(ctx context.Context, ev voiceguard.VoiceStateChange) []voiceguard.Action
}

type Config struct {
	Token string
	// GuildID scopes command registration. Empty registers global commands.
	GuildID string
}

type Adapter struct {
	session *discordgo.Session
	guildID string
	waiters *chat.Waiters

	mu       sync.RWMutex
	ctx      context.Context
	commands CommandHandler
	voice    VoiceStateHandler
}

func New(cfg Config, waiters *chat.Waiters) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = Intents
	if waiters == nil {
		waiters = chat.NewWaiters()
	}
	a := &Adapter{
		session: s,
		guildID: strings.TrimSpace(cfg.GuildID),
		waiters: waiters,
		ctx:     context.Background(),
	}
	s.AddHandler(a.onMessageCreate)
	s.AddHandler(a.onVoiceStateUpdate)
	s.AddHandler(a.onInteractionCreate)
	return a, nil
}

// Bind sets the handlers events are routed to. It must be called before
// Open for commands and voice events to be served.
func (a *Adapter) Bind(commands CommandHandler, voice VoiceStateHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = commands
	a.voice = voice
}

// Open connects to the gateway and registers the slash commands. Event
// handlers derive their contexts from ctx.
func (a *Adapter) Open(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord gateway open: %w", err)
	}
	appID := a.BotUserID()
	if appID == "" {
		_ = a.session.Close()
		return errors.New("discord gateway open: bot user unknown after ready")
	}
	cmds, err := a.session.ApplicationCommandBulkOverwrite(appID, a.guildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		_ = a.session.Close()
		return fmt.Errorf("register commands: %w", toStatusError(err))
	}
	scope := "global"
	if a.guildID != "" {
		scope = "guild " + a.guildID
	}
	log.Printf("discord: connected as %s, %d commands registered (%s)", appID, len(cmds), scope)
	return nil
}

func (a *Adapter) Close() error {
	return a.session.Close()
}

// BotUserID is the id of the connected bot account, empty before Open.
func (a *Adapter) BotUserID() string {
	if a.session.State == nil || a.session.State.User == nil {
		return ""
	}
	return a.session.State.User.ID
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return toStatusError(err)
}

func (a *Adapter) ResolveUser(ctx context.Context, userID string) (chat.User, error) {
	u, err := a.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return chat.User{}, fmt.Errorf("%w: %s", chat.ErrUserNotFound, userID)
		}
		return chat.User{}, toStatusError(err)
	}
	return chat.User{ID: u.ID, Username: u.Username}, nil
}

func (a *Adapter) WaitForMessage(ctx context.Context, match func(chat.Message) bool) (chat.Message, error) {
	return a.waiters.WaitForMessage(ctx, match)
}

// ChannelMembers lists members currently connected to a voice channel,
// from the gateway state cache.
func (a *Adapter) ChannelMembers(ctx context.Context, guildID, channelID string) ([]voiceguard.Member, error) {
	st := a.session.State
	g, err := st.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("guild %s: %w", guildID, err)
	}

	type present struct {
		userID string
		roles  []string
		known  bool
	}
	var found []present
	st.RLock()
	for _, vs := range g.VoiceStates {
		if vs == nil || vs.ChannelID != channelID {
			continue
		}
		p := present{userID: vs.UserID}
		if vs.Member != nil {
			p.roles = append([]string(nil), vs.Member.Roles...)
			p.known = true
		}
		found = append(found, p)
	}
	st.RUnlock()

	members := make([]voiceguard.Member, 0, len(found))
	for _, p := range found {
		roles := p.roles
		if !p.known {
			roles, err = a.memberRoles(ctx, guildID, p.userID)
			if err != nil {
				log.Printf("discord: roles for user %s: %v", p.userID, err)
			}
		}
		members = append(members, voiceguard.Member{UserID: p.userID, RoleIDs: roles})
	}
	return members, nil
}

func (a *Adapter) Disconnect(ctx context.Context, guildID, userID string) error {
	return toStatusError(a.session.GuildMemberMove(guildID, userID, nil, discordgo.WithContext(ctx)))
}

func (a *Adapter) memberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if m, err := a.session.State.Member(guildID, userID); err == nil {
		return append([]string(nil), m.Roles...), nil
	}
	m, err := a.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, toStatusError(err)
	}
	return m.Roles, nil
}

func (a *Adapter) handlers() (context.Context, CommandHandler, VoiceStateHandler) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx, a.commands, a.voice
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	a.waiters.Publish(messageFromEvent(m.Message))
}

func (a *Adapter) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	ctx, _, voice := a.handlers()
	if voice == nil || v == nil || v.VoiceState == nil {
		return
	}
	ev := voiceStateChange(v)
	if ev.Member.RoleIDs == nil && ev.AfterChannelID != "" && s != nil {
		roles, err := a.memberRoles(ctx, ev.GuildID, ev.Member.UserID)
		if err != nil {
			log.Printf("discord: roles for user %s: %v", ev.Member.UserID, err)
		}
		ev.Member.RoleIDs = roles
	}
	voice.HandleVoiceState(ctx, ev)
}

func (a *Adapter) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, commands, _ := a.handlers()
	if commands == nil || i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	r := &interactionResponder{session: s, interaction: i.Interaction}
	data := i.ApplicationCommandData()
	caller := callerFromInteraction(i.Interaction)

	switch data.Name {
	case CommandSlot:
		inv, err := decodeSlot(caller.UserID, data)
		if err != nil {
			log.Printf("discord: decode /%s from user=%s: %v", data.Name, caller.UserID, err)
		}
		commands.HandleSlot(ctx, inv, r)
	case CommandVoiceGuard:
		cmd, err := decodeVoiceGuard(data)
		if err != nil {
			log.Printf("discord: decode /%s from user=%s: %v", data.Name, caller.UserID, err)
		}
		commands.HandleVoiceGuard(ctx, caller, cmd, r)
	case CommandPayouts:
		commands.HandlePayouts(ctx, caller.UserID, r)
	default:
		log.Printf("discord: ignoring unknown command /%s", data.Name)
	}
}

func messageFromEvent(m *discordgo.Message) chat.Message {
	msg := chat.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
	}
	return msg
}

func voiceStateChange(v *discordgo.VoiceStateUpdate) voiceguard.VoiceStateChange {
	ev := voiceguard.VoiceStateChange{
		GuildID:        v.GuildID,
		Member:         voiceguard.Member{UserID: v.UserID},
		AfterChannelID: v.ChannelID,
	}
	if v.BeforeUpdate != nil {
		ev.BeforeChannelID = v.BeforeUpdate.ChannelID
	}
	if v.Member != nil {
		ev.Member.RoleIDs = append([]string{}, v.Member.Roles...)
	}
	return ev
}

// toStatusError exposes the HTTP status of REST failures to the retry
// classifier.
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return &chat.StatusError{Code: rest.Response.StatusCode, Err: err}
	}
	return err
}
