package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/ahrav/go-podium/infrastructure/logging"
	"github.com/ahrav/go-podium/infrastructure/store"
	"github.com/ahrav/go-podium/internal/application"
	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

func main() {
	var (
		configPath = flag.String("config", "podium.yaml", "Configuration file; defaults are used when it does not exist")
		contestID  = flag.String("contest", "demo-contest", "Contest identifier")
		categoryID = flag.String("category", "demo-category", "Category identifier")
		gradeID    = flag.String("grade", "demo-grade", "Grade identifier")
		players    = flag.Int("players", 12, "Number of competitors to generate")
		seats      = flag.Int("seats", 5, "Number of judge seats")
		excluded   = flag.Int("excluded", 1, "Number of competitors given the exclusion score")
		seed       = flag.Uint64("seed", 1, "Random seed")
	)
	flag.Parse()

	if *players < 1 || *seats < 1 || *excluded < 0 || *excluded > *players {
		log.Fatalf("invalid sizes: players=%d seats=%d excluded=%d", *players, *seats, *excluded)
	}

	cfg, err := application.LoadConfig(*configPath)
	if errors.Is(err, ports.ErrConfigNotFound) {
		cfg = application.DefaultConfig()
	} else if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	key := domain.GradeKey{ContestID: *contestID, CategoryID: *categoryID, GradeID: *gradeID}
	rng := rand.New(rand.NewPCG(*seed, *seed))

	seatIndexes := make([]int, *seats)
	for i := range seatIndexes {
		seatIndexes[i] = i
	}
	if err := st.SetSeats(ctx, key.ContestID, key.GradeID, seatIndexes); err != nil {
		log.Fatalf("Failed to assign seats: %v", err)
	}
	if err := st.PutScoreEntries(ctx, key, generateScores(rng, *players, *seats, *excluded)); err != nil {
		log.Fatalf("Failed to save scores: %v", err)
	}

	engine, err := application.NewEngine(cfg, application.Dependencies{
		Scores:   st,
		Roster:   st,
		Realtime: st,
		Results:  st,
		History:  st,
		Markers:  st,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	summary, err := engine.Summary(ctx, key, domain.SortByTotalScore)
	if err != nil {
		log.Fatalf("Failed to rank grade: %v", err)
	}

	fmt.Printf("Seeded grade %s:\n", key)
	fmt.Printf("- Store: %s\n", st.Path())
	fmt.Printf("- Competitors: %d\n", *players)
	fmt.Printf("- Judge seats: %d\n", *seats)
	fmt.Printf("- Duplicate ranks: %t\n", summary.HasDuplicates)
	fmt.Printf("- Result saved: %t\n", summary.ResultSaved)
	fmt.Println()
	for _, g := range summary.Groups {
		fmt.Printf("%5d  #%-4d %-12s total=%d alert=%t\n",
			g.PlayerRank, g.PlayerNumber, g.PlayerName, g.TotalScore, g.IsAlert)
	}
}

// generateScores returns one record per competitor and seat. Scores fall in
// [60, 100). The last excluded competitors get domain.ExcludedScore from
// every seat.
func generateScores(rng *rand.Rand, players, seats, excluded int) []domain.RawScore {
	raw := make([]domain.RawScore, 0, players*seats)
	for p := range players {
		competitor := domain.Competitor{
			PlayerNumber: p + 1,
			PlayerIndex:  p,
			PlayerName:   fmt.Sprintf("Player %d", p+1),
			PlayerGym:    fmt.Sprintf("Gym %c", 'A'+rune(p%4)),
			PlayerUID:    uuid.NewString(),
		}
		for s := range seats {
			score := 60 + rng.IntN(40)
			if p >= players-excluded {
				score = domain.ExcludedScore
			}
			raw = append(raw, domain.RawScore{Competitor: competitor, SeatIndex: s, PlayerScore: score})
		}
	}
	return raw
}
