package main

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/config"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/store"
	"github.com/adi-253/skillswap/internal/supabase"
)

// Demo records loaded into the in-memory store in development.
const (
	demoSwapID      = "6f1c2a9e-3b1d-4c55-9a55-2f8f0e1a7b01"
	demoRequesterID = "0d3b6a52-8c1e-4f0a-a7c2-5e4b9d2c1a01"
	demoTargetID    = "0d3b6a52-8c1e-4f0a-a7c2-5e4b9d2c1a02"
)

type backends struct {
	messages store.MessageStore
	swaps    store.SwapRepository
	users    store.UserDirectory
	db       *sql.DB
}

func (b *backends) Close() {
	if b.db != nil {
		b.db.Close()
	}
}

// openBackends picks the stores: Postgres for messages when DATABASE_URL is
// set, Supabase for swaps and users when SUPABASE_URL is set, memory otherwise.
func openBackends(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backends, error) {
	mem := store.NewMemory()
	b := &backends{messages: mem, swaps: mem, users: mem}

	if cfg.DatabaseURL != "" {
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		b.db = db
		b.messages, b.swaps, b.users = pg, pg, pg
		log.Info("using Postgres message store")
	} else {
		log.Warn("DATABASE_URL not set, messages are kept in memory")
	}

	if cfg.SupabaseURL != "" {
		client := supabase.NewClient(cfg)
		b.swaps, b.users = client, client
		log.Info("reading swap requests and users from Supabase")
	}

	if cfg.DatabaseURL == "" && cfg.SupabaseURL == "" && cfg.Environment == "development" {
		seedDemo(mem)
		log.Info("seeded demo swap",
			zap.String("conversation_id", demoSwapID),
			zap.String("requester_id", demoRequesterID),
			zap.String("target_id", demoTargetID))
	}
	return b, nil
}

func seedDemo(mem *store.Memory) {
	mem.PutUser(models.User{ID: demoRequesterID, Name: "Ada"})
	mem.PutUser(models.User{ID: demoTargetID, Name: "Grace"})
	mem.PutSwap(models.SwapRequest{
		ID:           demoSwapID,
		RequesterID:  demoRequesterID,
		TargetUserID: demoTargetID,
		Status:       models.SwapStatusAccepted,
	})
}
