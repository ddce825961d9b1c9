package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/colmryan/notedeck/internal/cardgen"
	"github.com/colmryan/notedeck/internal/config"
	"github.com/colmryan/notedeck/internal/graph"
	"github.com/colmryan/notedeck/internal/session"
	"github.com/colmryan/notedeck/internal/storage"
	"github.com/colmryan/notedeck/internal/store"
	"github.com/colmryan/notedeck/internal/syncer"
	"github.com/colmryan/notedeck/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad(os.Args[1:])
	ctx := context.Background()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Database opened", "path", cfg.DBPath)

	decks, err := db.LoadDecks()
	if err != nil {
		slog.Error("Failed to load card store", "error", err)
		os.Exit(1)
	}
	st := store.Load(decks)

	// Corrupted session or statistics records are discarded and
	// reinitialized empty, never fatal.
	stats, err := db.LoadStats()
	if err != nil {
		slog.Warn("Discarding corrupted statistics record", "error", err)
		stats = nil
	}
	sess, err := db.LoadSession()
	if err != nil {
		slog.Warn("Discarding corrupted session record", "error", err)
		if clearErr := db.ClearSession(); clearErr != nil {
			slog.Warn("Failed to clear corrupted session record", "error", clearErr)
		}
		sess = nil
	}
	if sess.Resumable() {
		slog.Info("Interrupted session found, client will be offered a resume",
			"position", sess.CurrentIndex, "total", len(sess.Queue))
	}

	mgr := session.NewManager(st, stats, sess, db, nil, session.Limits{
		DailyNew:    cfg.DailyNewLimit,
		DailyReview: cfg.DailyReviewLimit,
		NewOrder:    cfg.NewCardOrder,
	})

	var pusher syncer.Pusher
	if cfg.PushURL != "" {
		pusher = syncer.NewHTTPPusher(cfg.PushURL)
	}

	var fetcher syncer.Fetcher
	if cfg.SyncEnabled() {
		client := graph.NewClient(ctx, graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			RefreshToken: cfg.Graph.RefreshToken,
		})
		gen := cardgen.New(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model)
		fetcher = graph.NewDeckSource(client, gen)
	} else {
		slog.Info("Graph credentials missing, remote sync disabled")
	}

	var coord *syncer.Coordinator
	if fetcher != nil || pusher != nil {
		coord = syncer.New(fetcher, pusher, db, mgr)
		mgr.SetRemote(coord)

		// Anything queued while offline goes out before serving traffic.
		if err := coord.Flush(ctx); err != nil {
			slog.Warn("Push queue flush failed, will retry on next push", "error", err)
		}
	}

	srv := web.NewServer(mgr, coord)
	slog.Info("Listening", "addr", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, srv); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
