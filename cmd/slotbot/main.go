package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ent0n29/slotbot/internal/app"
	"github.com/ent0n29/slotbot/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg, help, err := applyFlags(cfg, os.Args[1:])
	if help {
		return
	}
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if strings.TrimSpace(cfg.DiscordToken) == "" {
		log.Fatalf("config error: DISCORD_TOKEN is required")
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	res, err := app.Build(runCtx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			log.Printf("cleanup failed: %v", err)
		}
	}()

	// The gateway comes up before the listener so cash-outs are never
	// accepted without a payout consumer behind them.
	if err := res.Start(runCtx); err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	if cfg.PaymentGateEnabled {
		log.Printf("payment gate: notifier=%s payee=%s currency=%s timeout=%s",
			cfg.PaymentNotifierID, res.Correlator.PayeeID(), cfg.PaymentCurrency, cfg.PaymentTimeout)
	} else {
		log.Printf("payment gate: disabled, /slot issues sessions directly")
	}
	log.Printf("session policy: %s ttl=%s", res.Sessions.Policy(), cfg.SessionTTL)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: res.API.Router(),
	}
	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	// No new cash-outs can arrive now; send what is already queued.
	if err := res.Stop(shutdownCtx); err != nil {
		log.Printf("%v", err)
	}
	runCancel()

	log.Printf("shutdown complete")
}

// applyFlags overrides cfg with any command-line flags that were set and
// re-validates the result. help is true when usage was printed.
func applyFlags(cfg config.Config, args []string) (config.Config, bool, error) {
	flagSet := pflag.NewFlagSet("slotbot", pflag.ContinueOnError)
	bind := flagSet.String("bind", cfg.BindAddr, "HTTP listen address (APP_BIND_ADDR)")
	vgPath := flagSet.String("voiceguard-config", cfg.VoiceGuardConfigPath, "voice guard config file (VOICEGUARD_CONFIG_PATH)")
	staticDir := flagSet.String("static-dir", cfg.StaticDir, "directory with the web client, embedded page when empty (STATIC_DIR)")
	guild := flagSet.String("guild", cfg.DiscordGuildID, "register commands in this guild only (DISCORD_GUILD_ID)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return cfg, true, nil
		}
		return cfg, false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return cfg, true, nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return cfg, false, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg.BindAddr = *bind
	cfg.VoiceGuardConfigPath = *vgPath
	cfg.StaticDir = *staticDir
	cfg.DiscordGuildID = *guild
	if err := cfg.Validate(); err != nil {
		return cfg, false, err
	}
	return cfg, false, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `slotbot runs the slot session bot and its HTTP API.

Settings come from the environment; the flags below override them.

Usage:
  slotbot [flags]

Flags:
%s`, flagSet.FlagUsages())
}
