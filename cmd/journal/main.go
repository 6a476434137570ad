// Package main lists and resolves reconciliation journal entries: documents
// partially written, stock adjustments skipped and delivery notes left unmarked.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"docengine/internal/domain/audit"
	"docengine/internal/infrastructure/storage/postgres"
	"docengine/pkg/config"
	"docengine/pkg/logger"
)

func main() {
	var (
		configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.yaml")
		limit      = flag.Int("limit", 100, "maximum entries to print")
		asJSON     = flag.Bool("json", false, "print entries as JSON lines")
		resolve    = flag.String("resolve", "", "mark the entry with this id as resolved")
		watch      = flag.Duration("watch", 0, "poll interval; 0 prints once")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cfg.Tenants.MetaDSN == "" {
		log.Fatalw("tenants.meta_dsn is required: the journal lives in the meta database")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pc := postgres.DefaultPoolConfig(cfg.Tenants.MetaDSN)
	pc.ApplicationName = cfg.App.Name + "-journal"
	pc.MaxConns = 2
	pc.MinConns = 0
	pool, err := postgres.NewPool(ctx, pc)
	if err != nil {
		log.Fatalw("failed to connect to meta database", "error", err)
	}
	defer pool.Close()

	journal, err := postgres.NewJournal(pool)
	if err != nil {
		log.Fatalw("failed to open journal", "error", err)
	}

	if *resolve != "" {
		id, err := uuid.Parse(*resolve)
		if err != nil {
			log.Fatalw("invalid entry id", "id", *resolve, "error", err)
		}
		if err := journal.Resolve(ctx, id); err != nil {
			log.Fatalw("resolve failed", "id", id, "error", err)
		}
		log.Infow("entry resolved", "id", id)
		return
	}

	write := printTable
	if *asJSON {
		write = printJSON
	}

	for {
		entries, err := journal.ListUnresolved(ctx, *limit)
		if err != nil {
			log.Fatalw("failed to list entries", "error", err)
		}
		if err := write(os.Stdout, entries); err != nil {
			log.Fatalw("failed to print entries", "error", err)
		}
		if *watch <= 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(*watch):
		}
	}
}

func printTable(w io.Writer, entries []audit.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tSCHEMA\tENGINE\tKIND\tNUMBER\tDETAIL")
	for _, e := range entries {
		detail, err := json.Marshal(e.Detail)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.CreatedAt.Format(time.RFC3339), e.Type, e.Schema, e.Engine, e.Kind, e.Number, detail)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, entries []audit.Entry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
