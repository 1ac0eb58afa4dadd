package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tsubaki/internal/ai"
	"tsubaki/internal/config"
	"tsubaki/internal/discord"
	"tsubaki/internal/eventsub"
	"tsubaki/internal/highlight"
	"tsubaki/internal/metrics"
	"tsubaki/internal/obs"
	"tsubaki/internal/pipeline"
	"tsubaki/internal/ratelimit"
	"tsubaki/internal/showflow"
	"tsubaki/internal/storage"
	"tsubaki/internal/throttle"
	"tsubaki/internal/twitch"
	"tsubaki/internal/version"
	"tsubaki/internal/vts"
	"tsubaki/internal/web"
	"tsubaki/pkg/jobmgr"
)

// vtsTokenKey stores the VTube Studio plugin token between restarts.
const vtsTokenKey = "vts.auth_token"

// settingsTokens adapts the settings store to the VTS token interface.
type settingsTokens struct {
	store *storage.Store
}

func (s settingsTokens) Token() (string, error) { return s.store.Setting(vtsTokenKey) }

func (s settingsTokens) SaveToken(token string) error {
	return s.store.SetSetting(vtsTokenKey, token)
}

func main() {
	log.Printf("[INFO] Starting %v...", version.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	jobs := jobmgr.NewManager(func(msg string) { log.Println("[INFO] job:", msg) })
	defer jobs.StopAll()

	// Control connections come up best-effort: a service that is offline at
	// startup keeps retrying in the background while the rest runs.
	obsClient := obs.New(cfg.OBSHost, cfg.OBSPort, cfg.OBSPassword)
	if err := obsClient.Connect(ctx); err != nil {
		log.Println("[WARN] OBS offline, retrying in background:", err)
	}
	defer obsClient.Disconnect()

	vtsClient := vts.New(vts.Config{
		Host:         cfg.VTSHost,
		Port:         cfg.VTSPort,
		PluginName:   version.AppName,
		PluginAuthor: "tsubaki",
	}, settingsTokens{store})
	if err := vtsClient.Connect(ctx); err != nil {
		log.Println("[WARN] VTube Studio offline, retrying in background:", err)
	}
	defer vtsClient.Disconnect()

	var provider ai.Provider
	if cfg.LLMEnabled() {
		provider = ai.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMAPIKey)
	} else {
		log.Println("[WARN] LLM_API_KEY not set; chat replies disabled")
	}

	limiter := ratelimit.New(cfg.RateWindow, cfg.RateMax)
	jobs.StartAsync("ratelimit-sweeper", func(ctx context.Context) error { //nolint:errcheck
		limiter.RunSweeper(ctx.Done(), time.Minute)
		return nil
	})

	pipe := &pipeline.Pipeline{
		Settings: store,
		History:  store,
		Provider: provider,
		Scenes:   obsClient,
		Avatar:   vtsClient,
		Limiter:  limiter,
	}

	connections := map[string]web.StateFunc{
		"obs": obsClient.State,
		"vts": vtsClient.State,
	}

	// Twitch chat plus the outbound throttler, the spike detector and the
	// redemption listener.
	var chat *twitch.Client
	if cfg.TwitchEnabled() {
		queue := throttle.New(ctx, cfg.ChatThrottle, func(channel, text string) error {
			chat.Say(channel, text)
			return nil
		})

		detector := highlight.NewDetectorWith(cfg.HighlightWindow, cfg.HighlightThreshold)
		recorder := highlight.NewRecorder(detector, store, obsClient, metrics.Highlights.Inc)

		primary := cfg.TwitchChannels[0]
		pipe.Say = func(text string) { queue.Enqueue(primary, text) }

		chat = twitch.New(twitch.Config{
			Username: cfg.TwitchUsername,
			Token:    cfg.TwitchToken,
			Channels: cfg.TwitchChannels,
			OnMessage: func(m twitch.Message) {
				pipe.HandleMessage(ctx, pipeline.Message{
					Platform:   "twitch",
					Channel:    m.Channel,
					User:       m.User,
					ExternalID: m.UserID,
					Text:       m.Text,
				}, func(text string) { queue.Enqueue(m.Channel, text) })
			},
			OnChatCount: recorder.HandleChatCount,
		})
		if err := chat.Connect(ctx); err != nil {
			log.Println("[WARN] Twitch chat offline, retrying in background:", err)
		}
		defer chat.Disconnect()
		connections["twitch"] = chat.State
	} else {
		log.Println("[WARN] Twitch chat not configured")
	}

	if cfg.EventSubEnabled() {
		redeems := eventsub.New(eventsub.Config{
			ClientID:      cfg.TwitchClientID,
			Token:         cfg.TwitchToken,
			BroadcasterID: cfg.TwitchBroadcasterID,
			OnRedeem: func(r eventsub.Redemption) {
				settings, err := store.AllSettings()
				if err != nil {
					log.Println("[ERR] Settings read failed for redemption:", err)
					return
				}
				table, err := eventsub.ParseRewardTable(settings)
				if err != nil {
					log.Println("[ERR] Bad reward table:", err)
					return
				}
				a, ok := table.Lookup(r.RewardTitle)
				if !ok {
					return
				}
				log.Printf("[INFO] Redemption %q by %s -> %s:%s", r.RewardTitle, r.User, a.Kind, a.Value)
				if err := pipe.ExecuteAction(ctx, a); err != nil {
					log.Println("[ERR] Redemption action failed:", err)
				}
			},
		})
		if err := redeems.Connect(ctx); err != nil {
			log.Println("[WARN] EventSub offline, retrying in background:", err)
		}
		defer redeems.Disconnect()
		connections["eventsub"] = redeems.State
	}

	// Show flow: cron steps loaded from settings at startup.
	flow := showflow.New()
	if raw, err := store.Setting(showflow.SettingsKey); err != nil {
		log.Println("[ERR] Reading show flow failed:", err)
	} else if raw != "" {
		steps, err := showflow.ParseSteps(raw)
		if err != nil {
			log.Println("[ERR] Bad show flow config:", err)
		} else if err := flow.Load(ctx, steps, pipe.ExecuteAction); err != nil {
			log.Println("[ERR] Loading show flow failed:", err)
		} else {
			log.Printf("[INFO] Show flow loaded with %d steps", flow.Jobs())
		}
	}
	defer flow.Stop()

	jobs.StartAsync("maintenance", func(ctx context.Context) error { //nolint:errcheck
		storage.RunMaintenance(ctx, store, cfg.BackupDir, cfg.MessageRetention)
		return nil
	})

	srv := &web.Server{Addr: cfg.HTTPAddr, Store: store, Connections: connections}
	jobs.StartAsync("web", func(ctx context.Context) error { //nolint:errcheck
		srv.RunWithContext(ctx)
		return nil
	})

	errCh := make(chan error, 1)
	if cfg.DiscordEnabled() {
		bot, err := discord.New(cfg.DiscordToken, cfg.DiscordChannelID, cfg.ChatThrottle, func(ctx context.Context, channelID, user, userID, text string, reply func(string)) {
			pipe.HandleMessage(ctx, pipeline.Message{
				Platform:   "discord",
				Channel:    channelID,
				User:       user,
				ExternalID: userID,
				Text:       text,
			}, reply)
		})
		if err != nil {
			log.Fatal(err)
		}
		go func() {
			if err := bot.Run(ctx); err != nil {
				errCh <- err
			}
			close(errCh)
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...\n", s)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Println("[ERR] Discord bot error:", err)
		}
		cancel()
	case <-ctx.Done():
	}

	log.Printf("[INFO] %v exited cleanly", version.AppName)
}
