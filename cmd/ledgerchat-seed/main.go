package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/demo/seed"
	"github.com/ledgerchat/ledgerchat/internal/observability"
	"github.com/ledgerchat/ledgerchat/internal/warehouse"
)

func main() {
	randSeed := flag.Int64("seed", 42, "random seed for generated values")
	yearsFlag := flag.String("years", "2023,2024", "comma-separated years to generate")
	flag.Parse()

	cfg, err := config.LoadFromEnv("ledgerchat-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	years, err := parseYears(*yearsFlag)
	if err != nil {
		logger.Error("invalid -years flag", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := warehouse.Open(context.Background(), cfg.Warehouse)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	seeder := seed.NewSeeder(db, logger)
	if err := seeder.Run(context.Background(), seed.NewGenerator(*randSeed, years)); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseYears(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	years := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		year, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		years = append(years, year)
	}
	return years, nil
}
