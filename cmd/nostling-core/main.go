// nostling-core is the headless engine behind a Nostr-based P2P messaging
// client: identity management, encrypted direct messages, gift-wrapped
// P2P signaling, a resilient multi-relay pool, an on-disk image cache, and
// signed release manifests, all in one binary with SQLite and a
// file-backed secret store by default.
//
// Usage:
//
//	export NOSTLING_IDENTITY_NSEC=nsec1...
//	export NOSTLING_RELAYS=wss://relay.damus.io,wss://nos.lol
//	./nostling-core
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/941design/nostling/internal/config"
	"github.com/941design/nostling/internal/identity"
	"github.com/941design/nostling/internal/imagecache"
	"github.com/941design/nostling/internal/manifest"
	"github.com/941design/nostling/internal/p2p"
	"github.com/941design/nostling/internal/relaypool"
	"github.com/941design/nostling/internal/secretstore"
	"github.com/941design/nostling/internal/statusapi"
	"github.com/nbd-wtf/go-nostr"
)

// noopEngine satisfies p2p.WebRTCEngine until a real media engine is
// wired in; every call returns nil, and every call except HandleRemoteICE
// logs. The signaling envelope this binary
// owns works regardless of what drives the media session.
type noopEngine struct{}

func (noopEngine) Initiate(sessionID string) error {
	slog.Info("p2p: initiate requested (no media engine wired)", "session_id", sessionID)
	return nil
}
func (noopEngine) HandleRemoteOffer(sessionID, sdp string) error {
	slog.Info("p2p: remote offer received (no media engine wired)", "session_id", sessionID)
	return nil
}
func (noopEngine) HandleRemoteAnswer(sessionID, sdp string) error {
	slog.Info("p2p: remote answer received (no media engine wired)", "session_id", sessionID)
	return nil
}
func (noopEngine) HandleRemoteICE(sessionID, candidate string) error {
	return nil
}
func (noopEngine) Teardown(sessionID string) error {
	slog.Info("p2p: teardown requested (no media engine wired)", "session_id", sessionID)
	return nil
}

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("starting nostling core engine")

	cfg := config.Load()
	slog.Info("config loaded",
		"data_dir", cfg.DataDir,
		"relays", cfg.Relays,
		"p2p_enabled", cfg.P2PEnabled,
	)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	// ─── Secret store (C2) ─────────────────────────────────────────────
	secrets, err := secretstore.NewFileStore(cfg.DataDir, os.Getenv("NOSTLING_MASTER_PASSPHRASE"))
	if err != nil {
		slog.Error("failed to open secret store", "error", err)
		os.Exit(1)
	}

	// ─── Identity (C1) ──────────────────────────────────────────────────
	identityID := getEnv("NOSTLING_IDENTITY_ID", "default")
	kp, err := loadOrCreateIdentity(secrets, identityID)
	if err != nil {
		slog.Error("failed to load or create identity", "error", err)
		os.Exit(1)
	}
	slog.Info("identity ready", "npub", kp.Npub)

	// ─── Image cache (C6) ───────────────────────────────────────────────
	cache, err := imagecache.Open(
		filepath.Join(cfg.DataDir, "images"),
		cfg.MaxCacheSizeBytes,
		filepath.Join(cfg.DataDir, "imagecache.db"),
	)
	if err != nil {
		slog.Error("failed to open image cache", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	// ─── Manifest signing key (C7) ───────────────────────────────────────
	manifestKeys, err := manifest.LoadOrGenerateKeyPair(
		filepath.Join(cfg.DataDir, "manifest.pem"),
		filepath.Join(cfg.DataDir, "manifest.pub.pem"),
	)
	if err != nil {
		slog.Error("failed to load or generate manifest signing key", "error", err)
		os.Exit(1)
	}
	_ = manifestKeys // exercised by release tooling, not the running engine

	// ─── Graceful shutdown ────────────────────────────────────────────
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ─── Relay pool (C4) ────────────────────────────────────────────────
	pool := relaypool.New(cfg.Relays, relaypool.Config{
		MonitorInterval: cfg.MonitorInterval,
		ConnectTimeout:  cfg.ConnectTimeout,
		BackoffCap:      cfg.BackoffCap,
	})
	pool.Connect(ctx)
	defer pool.Disconnect()

	publisher := relaypool.NewPublisher(pool)

	// ─── P2P signaling coordinator (C5) ─────────────────────────────────
	sessionStore, err := p2p.OpenStore(filepath.Join(cfg.DataDir, "p2p_sessions.db"))
	if err != nil {
		slog.Error("failed to open p2p session store", "error", err)
		os.Exit(1)
	}
	defer sessionStore.Close()

	coordinator := p2p.NewCoordinator(sessionStore, publisher, noopEngine{}, p2p.Config{
		Enabled: cfg.P2PEnabled,
	})

	inboundFilters := nostr.Filters{{
		Kinds: []int{identity.KindEncryptedDM, identity.KindGiftWrap},
		Tags:  nostr.TagMap{"p": []string{kp.PubkeyHex}},
	}}
	sub, err := pool.Subscribe(ctx, inboundFilters, func(relayURL string, event *nostr.Event) {
		if event.Kind != identity.KindGiftWrap {
			return
		}
		// RouteInboundSignal silently ignores gift wraps that don't carry
		// a P2P signaling rumor for this identity.
		if err := coordinator.RouteInboundSignal(kp.SecretKeyHex, kp.PubkeyHex, event); err != nil {
			slog.Warn("p2p: failed to route inbound signal", "relay", relayURL, "error", err)
		}
	})
	if err != nil {
		slog.Warn("initial subscription failed, continuing without it", "error", err)
	} else {
		defer sub.Close()
	}

	// ─── Status API ─────────────────────────────────────────────────────
	statusAddr := getEnv("NOSTLING_STATUS_ADDR", ":8090")
	statusSrv := statusapi.New(statusAddr, pool, cache, sessionStore)
	statusSrv.Start(ctx) // blocks until ctx is cancelled

	slog.Info("nostling core engine stopped")
}

func loadOrCreateIdentity(secrets secretstore.Store, identityID string) (*identity.Keypair, error) {
	ref := "nostr-secret:" + identityID

	if nsec := os.Getenv("NOSTLING_IDENTITY_NSEC"); nsec != "" {
		kp, err := identity.DeriveFromNsec(nsec)
		if err != nil {
			return nil, err
		}
		if _, err := secrets.Save(ref, nsec); err != nil {
			return nil, err
		}
		return kp, nil
	}

	if nsec, ok, err := secrets.Get(ref); err != nil {
		return nil, err
	} else if ok {
		return identity.DeriveFromNsec(nsec)
	}

	kp, err := identity.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	nsec, err := identity.EncodeNsec(kp.SecretKeyHex)
	if err != nil {
		return nil, err
	}
	if _, err := secrets.Save(ref, nsec); err != nil {
		return nil, err
	}
	return kp, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
