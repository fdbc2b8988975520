package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"skillconnect/internal/config"
	"skillconnect/internal/database"
	"skillconnect/internal/models"

	"github.com/rs/zerolog"
)

// normalize_skills rewrites provider skills to the spelling used by the trades
// catalog so reports group them together. Unknown skills are kept as they are.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		tradesPath = flag.String("trades", "configs/trades.yaml", "path to trades.yaml")
		dbPath     = flag.String("db", "./data/skillconnect.db", "path to sqlite db")
		dryRun     = flag.Bool("dry-run", false, "report changes without writing them")
	)
	flag.Parse()

	trades, err := config.LoadTrades(*tradesPath)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	if len(trades) == 0 {
		return fmt.Errorf("no trades in yaml")
	}

	canonical := make(map[string]string)
	for _, t := range trades {
		canonical[strings.ToLower(t.Name)] = t.Name
		for _, s := range t.Skills {
			canonical[strings.ToLower(s)] = s
		}
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providers, err := db.ListUsers(ctx, models.UserFilter{Role: models.RoleServiceProvider})
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}

	updated, unknown := 0, 0
	for _, p := range providers {
		changed := false
		for i, skill := range p.Skills {
			name, ok := canonical[strings.ToLower(strings.TrimSpace(skill))]
			if !ok {
				unknown++
				continue
			}
			if name != skill {
				p.Skills[i] = name
				changed = true
			}
		}
		if !changed {
			continue
		}
		updated++
		if *dryRun {
			logger.Info().Int64("user_id", p.ID).Strs("skills", p.Skills).Msg("would update")
			continue
		}
		if err := db.UpdateUserProfile(ctx, p); err != nil {
			return fmt.Errorf("update user %d: %w", p.ID, err)
		}
	}

	fmt.Printf("done: providers=%d updated=%d unknown_skills=%d\n", len(providers), updated, unknown)
	return nil
}
