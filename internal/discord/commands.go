package discord

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ent0n29/slotbot/internal/bot"
	"github.com/ent0n29/slotbot/internal/policy"
)

const (
	CommandSlot       = "slot"
	CommandVoiceGuard = "voiceguard"
	CommandPayouts    = "payouts"
)

var errMissingSubcommand = errors.New("missing subcommand")

// Commands returns the slash command definitions registered on Open.
func Commands() []*discordgo.ApplicationCommand {
	minCoins := 1.0
	minPage := 1.0
	adminPerm := int64(discordgo.PermissionAdministrator)
	dmAllowed := false

	user := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Member to configure",
			Required:    required,
		}
	}
	flag := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        name,
			Description: desc,
		}
	}
	f1 := flag("f1", "Disconnect this user when joining a channel with a protected member")
	f2 := flag("f2", "Disconnect this user when a protected member joins their channel")

	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandSlot,
			Description: "Buy coins and get a link to a slot session",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "coins",
					Description: "Number of coins to play with",
					Required:    true,
					MinValue:    &minCoins,
				},
			},
		},
		{
			Name:        CommandPayouts,
			Description: "Show your recent cash-out payouts",
		},
		{
			Name:                     CommandVoiceGuard,
			Description:              "Configure voice channel restrictions",
			DefaultMemberPermissions: &adminPerm,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: bot.SubShow, Description: "Show the current configuration"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        bot.SubSetRole,
					Description: "Set the protected role",
					Options: []*discordgo.ApplicationCommandOption{{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "role_id",
						Description: "Numeric role id",
						Required:    true,
					}},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: bot.SubAdd, Description: "Add a restricted user", Options: []*discordgo.ApplicationCommandOption{user(true), f1, f2}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: bot.SubSet, Description: "Change a restricted user's flags", Options: []*discordgo.ApplicationCommandOption{user(true), f1, f2}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: bot.SubRemove, Description: "Remove a restricted user", Options: []*discordgo.ApplicationCommandOption{user(true)}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: bot.SubUser, Description: "Show one restricted user", Options: []*discordgo.ApplicationCommandOption{user(true)}},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        bot.SubList,
					Description: "List restricted users",
					Options: []*discordgo.ApplicationCommandOption{{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "page",
						Description: "Page number",
						MinValue:    &minPage,
					}},
				},
			},
		},
	}
}

type option = discordgo.ApplicationCommandInteractionDataOption

func optionsByName(opts []*option) map[string]*option {
	out := make(map[string]*option, len(opts))
	for _, o := range opts {
		if o != nil {
			out[o.Name] = o
		}
	}
	return out
}

func optionString(o *option) string {
	if o == nil {
		return ""
	}
	switch v := o.Value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func optionInt(o *option) (int64, error) {
	if o == nil {
		return 0, errors.New("missing value")
	}
	switch v := o.Value.(type) {
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
			return 0, fmt.Errorf("%s is not an integer", o.Name)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", o.Name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s has unexpected type %T", o.Name, o.Value)
	}
}

func optionBool(o *option) *bool {
	if o == nil {
		return nil
	}
	v, ok := o.Value.(bool)
	if !ok {
		return nil
	}
	return &v
}

// decodeSlot extracts the coin count. An undecodable value yields zero
// coins, which the handler rejects with the validation reply.
func decodeSlot(userID string, data discordgo.ApplicationCommandInteractionData) (bot.SlotInvocation, error) {
	inv := bot.SlotInvocation{UserID: userID}
	coins, err := optionInt(optionsByName(data.Options)["coins"])
	if err != nil {
		return inv, err
	}
	inv.Coins = coins
	return inv, nil
}

func decodeVoiceGuard(data discordgo.ApplicationCommandInteractionData) (bot.AdminCommand, error) {
	if len(data.Options) == 0 || data.Options[0] == nil || data.Options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return bot.AdminCommand{}, errMissingSubcommand
	}
	sub := data.Options[0]
	opts := optionsByName(sub.Options)
	cmd := bot.AdminCommand{
		Sub:    sub.Name,
		UserID: optionString(opts["user"]),
		RoleID: optionString(opts["role_id"]),
		F1:     optionBool(opts["f1"]),
		F2:     optionBool(opts["f2"]),
		Page:   1,
	}
	if p, ok := opts["page"]; ok {
		page, err := optionInt(p)
		if err != nil {
			return cmd, err
		}
		cmd.Page = int(page)
	}
	return cmd, nil
}

func callerFromInteraction(i *discordgo.Interaction) policy.Caller {
	if i.Member != nil {
		c := policy.Caller{
			RoleIDs:       append([]string(nil), i.Member.Roles...),
			Administrator: i.Member.Permissions&discordgo.PermissionAdministrator != 0,
		}
		if i.Member.User != nil {
			c.UserID = i.Member.User.ID
		}
		return c
	}
	if i.User != nil {
		return policy.Caller{UserID: i.User.ID}
	}
	return policy.Caller{}
}

type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func replyFlags(reply bot.Reply) discordgo.MessageFlags {
	if reply.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r *interactionResponder) Respond(ctx context.Context, reply bot.Reply) error {
	err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply.Content,
			Flags:   replyFlags(reply),
		},
	}, discordgo.WithContext(ctx))
	return toStatusError(err)
}

func (r *interactionResponder) FollowUp(ctx context.Context, reply bot.Reply) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: reply.Content,
		Flags:   replyFlags(reply),
	}, discordgo.WithContext(ctx))
	return toStatusError(err)
}
