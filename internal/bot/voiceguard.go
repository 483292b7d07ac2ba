package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/slotbot/internal/policy"
	"github.com/ent0n29/slotbot/internal/voiceguard"
)

// Voice guard subcommand names.
const (
	SubShow    = "show"
	SubSetRole = "set-role"
	SubAdd     = "add"
	SubSet     = "set"
	SubRemove  = "remove"
	SubUser    = "user"
	SubList    = "list"
)

// AdminCommand is a decoded /voiceguard subcommand. Unused fields are zero.
type AdminCommand struct {
	Sub    string
	UserID string
	RoleID string
	F1     *bool
	F2     *bool
	Page   int
}

// HandleVoiceGuard authorizes and runs one administrative subcommand. All
// replies are ephemeral.
func (b *Bot) HandleVoiceGuard(ctx context.Context, caller policy.Caller, cmd AdminCommand, r Responder) {
	if !policy.CanAdminister(caller, b.adminRoleID) {
		b.metrics.ObserveCommand("voiceguard", "denied")
		b.reply(ctx, r, Reply{Content: policy.DeniedMessage, Ephemeral: true})
		return
	}

	content, err := b.runVoiceGuard(cmd)
	result := "ok"
	if err != nil {
		result = "rejected"
		content = describeAdminError(err)
		if !isAdminValidation(err) {
			result = "error"
			log.Printf("voiceguard: %s by user=%s failed: %v", cmd.Sub, caller.UserID, err)
		}
	} else if cmd.Sub != SubShow && cmd.Sub != SubUser && cmd.Sub != SubList {
		log.Printf("voiceguard: %s by user=%s applied", cmd.Sub, caller.UserID)
	}
	b.metrics.ObserveCommand("voiceguard_"+cmd.Sub, result)
	b.reply(ctx, r, Reply{Content: content, Ephemeral: true})
}

var errUnknownSubcommand = errors.New("unknown subcommand")

func (b *Bot) runVoiceGuard(cmd AdminCommand) (string, error) {
	vg := b.voiceguard
	switch cmd.Sub {
	case SubShow:
		return formatConfig(vg.Snapshot()), nil
	case SubSetRole:
		if err := vg.SetProtectedRole(strings.TrimSpace(cmd.RoleID)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Protected role set to <@&%s>.", strings.TrimSpace(cmd.RoleID)), nil
	case SubAdd:
		flags, err := vg.AddTarget(cmd.UserID, cmd.F1, cmd.F2)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Added <@%s> (%s).", cmd.UserID, formatFlags(flags)), nil
	case SubSet:
		flags, err := vg.SetTarget(cmd.UserID, cmd.F1, cmd.F2)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated <@%s> (%s).", cmd.UserID, formatFlags(flags)), nil
	case SubRemove:
		if err := vg.RemoveTarget(cmd.UserID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed <@%s>.", cmd.UserID), nil
	case SubUser:
		flags, ok := vg.Target(cmd.UserID)
		if !ok {
			return "", voiceguard.ErrTargetNotFound
		}
		return fmt.Sprintf("<@%s>: %s", cmd.UserID, formatFlags(flags)), nil
	case SubList:
		return formatList(vg.ListTargets(cmd.Page)), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownSubcommand, cmd.Sub)
	}
}

func isAdminValidation(err error) bool {
	return errors.Is(err, voiceguard.ErrInvalidRoleID) ||
		errors.Is(err, voiceguard.ErrInvalidUserID) ||
		errors.Is(err, voiceguard.ErrTargetNotFound) ||
		errors.Is(err, errUnknownSubcommand)
}

func describeAdminError(err error) string {
	switch {
	case errors.Is(err, voiceguard.ErrInvalidRoleID):
		return "Role id must be numeric."
	case errors.Is(err, voiceguard.ErrInvalidUserID):
		return "User id must be numeric."
	case errors.Is(err, voiceguard.ErrTargetNotFound):
		return "That user is not in the restricted list."
	case errors.Is(err, errUnknownSubcommand):
		return "Unknown subcommand."
	default:
		return "Could not save the voice guard configuration."
	}
}

func formatFlags(f voiceguard.Flags) string {
	return fmt.Sprintf("f1=%s f2=%s", onOff(f.F1), onOff(f.F2))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatConfig(cfg voiceguard.Config) string {
	role := "not set"
	if cfg.HasProtectedRole() {
		role = "<@&" + cfg.ProtectedRoleID + ">"
	}
	return fmt.Sprintf("Protected role: %s\nRestricted users: %d", role, len(cfg.Targets))
}

func formatList(targets []voiceguard.Target, pages int) string {
	if len(targets) == 0 {
		return fmt.Sprintf("No restricted users on this page (%d page(s) total).", pages)
	}
	var sb strings.Builder
	for _, t := range targets {
		fmt.Fprintf(&sb, "<@%s>: %s\n", t.UserID, formatFlags(t.Flags))
	}
	fmt.Fprintf(&sb, "%d page(s) total.", pages)
	return sb.String()
}
