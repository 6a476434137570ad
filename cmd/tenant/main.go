// Package main provides a CLI for the tenants table of the meta database.
// Usage: tenant list
//        tenant add <year> <business-unit> [display name]
//        tenant close <schema>
//        tenant reopen <schema>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"docengine/internal/core/tenant"
	"docengine/internal/infrastructure/storage/postgres"
	"docengine/pkg/config"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.yaml")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}
	if args[0] == "help" {
		printUsage()
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Tenants.MetaDSN == "" {
		fmt.Println("Error: tenants.meta_dsn is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pc := postgres.DefaultPoolConfig(cfg.Tenants.MetaDSN)
	pc.ApplicationName = cfg.App.Name + "-tenant"
	pc.MaxConns = 1
	pc.MinConns = 0
	pool, err := postgres.NewPool(ctx, pc)
	if err != nil {
		fmt.Printf("Error connecting to meta database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := run(ctx, tenant.NewPostgresRegistry(pool), os.Stdout, args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// store is the part of the registry the CLI needs.
type store interface {
	ListAll(ctx context.Context) ([]*tenant.Tenant, error)
	Create(ctx context.Context, t *tenant.Tenant) error
	SetStatus(ctx context.Context, schema string, status tenant.Status) error
}

var errUsage = errors.New("invalid arguments")

func run(ctx context.Context, s store, out io.Writer, args []string) error {
	switch args[0] {
	case "list":
		tenants, err := s.ListAll(ctx)
		if err != nil {
			return err
		}
		return printTenants(out, tenants)
	case "add":
		t, err := parseTenant(args[1:])
		if err != nil {
			return err
		}
		if err := s.Create(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Tenant '%s' registered\n", t.Schema)
		return nil
	case "close", "reopen":
		if len(args) != 2 {
			return fmt.Errorf("%w: %s <schema>", errUsage, args[0])
		}
		status := tenant.StatusClosed
		if args[0] == "reopen" {
			status = tenant.StatusActive
		}
		if err := s.SetStatus(ctx, args[1], status); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Tenant '%s' is now %s\n", args[1], status)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func parseTenant(args []string) (*tenant.Tenant, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: add <year> <business-unit> [display name]", errUsage)
	}
	year, err := strconv.Atoi(args[0])
	if err != nil || year < 1900 || year > 9999 {
		return nil, fmt.Errorf("%w: year %q", errUsage, args[0])
	}
	schema, err := tenant.ComposeSchema(args[0], args[1])
	if err != nil {
		return nil, err
	}
	name := strings.Join(args[2:], " ")
	if name == "" {
		name = schema
	}
	return &tenant.Tenant{
		Schema:       schema,
		BusinessUnit: strings.ToLower(args[1]),
		FiscalYear:   year,
		DisplayName:  name,
		Status:       tenant.StatusActive,
	}, nil
}

func printTenants(w io.Writer, tenants []*tenant.Tenant) error {
	if len(tenants) == 0 {
		fmt.Fprintln(w, "No tenants found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEMA\tYEAR\tBU\tNAME\tSTATUS\tCREATED")
	for _, t := range tenants {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			t.Schema, t.FiscalYear, t.BusinessUnit, t.DisplayName, t.Status, t.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func printUsage() {
	fmt.Println(`docengine tenant management

Usage:
  tenant [-config path] <command> [arguments]

Commands:
  list                              List all tenants
  add <year> <bu> [display name]    Register the schema <year>_<bu>
  close <schema>                    Stop serving a fiscal year
  reopen <schema>                   Serve a closed fiscal year again
  help                              Show this help

Every change is announced on the tenants_changed channel so running
servers drop the cached entry.`)
}
