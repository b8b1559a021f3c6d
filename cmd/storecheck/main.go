package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/rematch-discord-bot/internal/config"
	"github.com/park285/rematch-discord-bot/internal/domain"
	"github.com/park285/rematch-discord-bot/internal/matchstore"
	"go.uber.org/zap"
)

// storecheck opens the configured match store and prints what the bot
// would see: the listed match ids and every expired ACTIVE record.
//
//	storecheck [match_id ...]
func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf(".env error: %v", err)
	}
	backend := strings.TrimSpace(os.Getenv("STORE_BACKEND"))
	if backend == "" {
		backend = matchstore.BackendFile
	}
	filePath := strings.TrimSpace(os.Getenv("STORE_FILE"))
	if filePath == "" {
		filePath = matchstore.DefaultFilePath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := matchstore.Open(ctx, matchstore.Options{
		Backend:     backend,
		FilePath:    filePath,
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}, zap.NewNop())
	if err != nil {
		log.Fatalf("open %s store: %v", backend, err)
	}
	defer store.Close()
	if fs, ok := store.(*matchstore.FileStore); ok {
		log.Printf("store ok: backend=%s path=%s", backend, fs.Path())
	} else {
		log.Printf("store ok: backend=%s", backend)
	}

	for _, arg := range os.Args[1:] {
		id, err := domain.ParseMatchID(arg)
		if err != nil {
			log.Printf("skip %q: %v", arg, err)
			continue
		}
		rec, err := store.GetMatch(ctx, id)
		switch {
		case err != nil:
			log.Printf("match %s: lookup error: %v", id, err)
		case rec == nil:
			fmt.Printf("match %s: not found\n", id)
		default:
			printRecord(rec)
		}
	}

	now := time.Now()
	expired, err := store.GetExpiredActiveMatches(ctx, now)
	if err != nil {
		log.Fatalf("expired query: %v", err)
	}
	fmt.Printf("expired active matches at %s: %d\n", now.UTC().Format(time.RFC3339), len(expired))
	for _, rec := range expired {
		printRecord(rec)
	}
}

func printRecord(rec *domain.MatchChannelRecord) {
	exp := "never"
	if rec.ExpiresAt != nil {
		exp = rec.ExpiresAt.UTC().Format(time.RFC3339)
	}
	fmt.Printf("match %s status=%s team_a=%s team_b=%s created=%s expires=%s\n",
		rec.MatchID, rec.Status, rec.TeamAChannelID, rec.TeamBChannelID,
		rec.CreatedAt.UTC().Format(time.RFC3339), exp)
}
