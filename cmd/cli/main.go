package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository"
	"github.com/wadjakorntonsri/tinylink/pkg/config"
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/logger"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "JSON file to import")

	if len(os.Args) < 2 {
		fmt.Println("expected 'export' or 'import' subcommands")
		os.Exit(1)
	}

	cfg := config.Load()
	logger.Init(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	repo, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer repo.Close()

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if err := doExport(ctx, repo, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("export failed")
		}
	case "import":
		importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		file, err := os.Open(*importFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open file")
		}
		defer file.Close()

		imported, skipped, err := doImport(ctx, repo, file)
		if err != nil {
			log.Fatal().Err(err).Msg("import failed")
		}
		log.Info().Int("imported", imported).Int("skipped", skipped).Msg("import finished")
	default:
		fmt.Println("expected 'export' or 'import' subcommands")
		os.Exit(1)
	}
}

// doExport writes every link, counters and monthly buckets included, as JSON.
func doExport(ctx context.Context, repo ports.LinkRepository, w io.Writer) error {
	links, err := repo.Dump(ctx)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(links)
}

// doImport restores links from an export. Links whose short code is
// already taken are skipped.
func doImport(ctx context.Context, repo ports.LinkRepository, r io.Reader) (imported, skipped int, err error) {
	var links []domain.ShortLink
	if err := json.NewDecoder(r).Decode(&links); err != nil {
		return 0, 0, fmt.Errorf("decode: %w", err)
	}

	for i := range links {
		l := &links[i]
		err := repo.Restore(ctx, l)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, domain.ErrCodeConflict):
			log.Warn().Str("short_code", l.ShortCode).Msg("skipping existing code")
			skipped++
		default:
			return imported, skipped, fmt.Errorf("restore %s: %w", l.ShortCode, err)
		}
	}
	return imported, skipped, nil
}
