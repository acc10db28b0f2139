// keyadmin provisions credentials out-of-band, directly against the relay's
// store file. The relay itself never inserts or deletes rows.
//
// Usage:
//
//	keyadmin add -db keyrelay.db -base-url https://api.example.com -secret sk-... [-pool team-a]
//	keyadmin list -db keyrelay.db [-pool team-a]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	sqliteadapter "github.com/ericfisherdev/keyrelay/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/keyrelay/internal/domain/model"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "keyadmin:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: keyadmin <add|list> [flags]")
	}

	switch args[0] {
	case "add":
		return runAdd(args[1:])
	case "list":
		return runList(args[1:])
	default:
		return fmt.Errorf("unknown command %q (want add or list)", args[0])
	}
}

func openRepo(dbPath string) (*sqliteadapter.KeyRepo, *sqliteadapter.DB, error) {
	db, err := sqliteadapter.NewDB(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, nil, err
	}
	return sqliteadapter.NewKeyRepo(db), db, nil
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	dbPath := fs.String("db", "keyrelay.db", "path to the credential store")
	pool := fs.String("pool", "", "pool tag; empty for the single-tenant pool")
	baseURL := fs.String("base-url", "", "upstream origin, optionally with a path prefix")
	secret := fs.String("secret", "", "bearer value presented to the upstream")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *baseURL == "" || *secret == "" {
		return errors.New("add: -base-url and -secret are required")
	}

	repo, db, err := openRepo(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	cred, err := repo.Add(context.Background(), model.Credential{
		Pool:    *pool,
		BaseURL: *baseURL,
		Secret:  *secret,
	})
	if err != nil {
		return err
	}

	fmt.Printf("added credential %d (pool %q)\n", cred.ID, cred.Pool)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dbPath := fs.String("db", "keyrelay.db", "path to the credential store")
	pool := fs.String("pool", "", "pool tag; empty for the single-tenant pool")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, db, err := openRepo(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	creds, err := repo.ListByPool(context.Background(), *pool)
	if err != nil {
		return err
	}

	// Secrets are never printed.
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPOOL\tBASE URL\tLAST USED")
	for _, c := range creds {
		lastUsed := "never"
		if c.LastUsed > 0 {
			lastUsed = time.UnixMilli(c.LastUsed).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Pool, c.BaseURL, lastUsed)
	}
	return w.Flush()
}
