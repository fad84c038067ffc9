package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wardrobe/internal/adapter"
	"wardrobe/internal/infra"
)

func main() {
	var (
		idFlag     string
		ownerFlag  string
		dryRunFlag bool
	)

	flag.StringVar(&idFlag, "id", "", "garment record ID to reset (UUID)")
	flag.StringVar(&ownerFlag, "owner", "", "reset every failed record of this owner")
	flag.BoolVar(&dryRunFlag, "dry-run", false, "list the records without resetting them")
	flag.Parse()

	id := strings.TrimSpace(idFlag)
	owner := strings.TrimSpace(ownerFlag)
	if id == "" && owner == "" {
		exitWithError(errors.New("either -id or -owner must be provided"))
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	if cfg.DatabaseDriver == infra.DatabaseDriverMemory {
		exitWithError(errors.New("the memory database driver keeps no records between processes"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := infra.NewLogger("cli").With().Str("cmd", "rederive").Logger()
	repos, err := adapter.Open(ctx, cfg, logger)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open database: %w", err))
	}
	defer repos.Close()

	ids := []string{id}
	if id == "" {
		ids, err = repos.Assets.ListFailedIDsByOwner(ctx, owner)
		if err != nil {
			exitWithError(fmt.Errorf("failed to list records: %w", err))
		}
	}
	if len(ids) == 0 {
		fmt.Println("no failed records")
		return
	}

	reset := 0
	for _, recordID := range ids {
		if dryRunFlag {
			fmt.Printf("would reset %s\n", recordID)
			continue
		}
		if err := repos.Assets.Reset(ctx, recordID); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", recordID, err)
			continue
		}
		reset++
		fmt.Printf("reset %s\n", recordID)
	}
	if !dryRunFlag {
		fmt.Printf("%d of %d records back to pending; the worker schedules them after %s\n", reset, len(ids), cfg.RecoveryGrace)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
