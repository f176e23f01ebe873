// Command quietmesh-migrate rebuilds projected state from the stored
// events, without re-running the full envelope pipeline. It exists for
// the case a projector changes (a column added, a bug fixed) after
// events have already been validated and stored: since event storage
// and projection are deliberately separate steps (spec.md §4.4), the
// authoritative events can be replayed through the new projector logic
// directly.
//
// Grounded on _examples/cuemby-warren/cmd/warren-migrate/main.go's
// backup-then-rewrite shape (there: rewriting a bbolt bucket under a
// new key scheme; here: re-deriving SQLite projected tables from the
// event log), including its --dry-run flag and pre-migration backup.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/quietmesh/core/pkg/projector"
	"github.com/quietmesh/core/pkg/protocol"
	"github.com/quietmesh/core/pkg/store"
	"github.com/quietmesh/core/pkg/types"
)

var (
	dbPath     = flag.String("db-path", "quietmesh.db", "Path to the event store SQLite file")
	dryRun     = flag.Bool("dry-run", false, "Report what would be reprojected without writing")
	backupPath = flag.String("backup", "", "Backup path before migrating (default: <db-path>.backup)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags)
	log.Println("quietmesh projection rebuild")
	log.Println("=============================")

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", *dbPath)
	}

	if !*dryRun {
		backup := *backupPath
		if backup == "" {
			backup = *dbPath + ".backup"
		}
		log.Printf("creating backup: %s", backup)
		if err := copyFile(*dbPath, backup); err != nil {
			log.Fatalf("backup failed: %v", err)
		}
		log.Println("backup created")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open event store: %v", err)
	}
	defer db.Close()

	if err := protocol.EnsureSchema(db.Conn()); err != nil {
		log.Fatalf("ensure projected schema: %v", err)
	}

	registry := projector.NewRegistry()
	protocol.RegisterProjectors(registry)

	if err := rebuild(db, registry, *dryRun); err != nil {
		log.Fatalf("rebuild failed: %v", err)
	}
	log.Println("done")
}

func rebuild(db *store.DB, registry *projector.Registry, dryRun bool) error {
	rows, err := db.Conn().Query(`
		SELECT event_id, event_type, event_plaintext
		FROM events
		WHERE purged = 0 AND event_plaintext IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	type row struct {
		id, typ string
		body    []byte
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.typ, &r.body); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Printf("found %d storable events", len(all))
	var reprojected, skipped int
	for _, r := range all {
		var plaintext map[string]any
		if err := json.Unmarshal(r.body, &plaintext); err != nil {
			log.Printf("warning: skipping %s (%s): invalid plaintext: %v", r.id, r.typ, err)
			skipped++
			continue
		}
		env := types.Envelope{
			EventID:        r.id,
			EventType:      r.typ,
			EventPlaintext: plaintext,
			Validated:      true,
		}

		deltas, err := registry.Project(env)
		if err != nil {
			log.Printf("warning: project %s (%s) failed: %v", r.id, r.typ, err)
			skipped++
			continue
		}
		if deltas == nil {
			skipped++
			continue
		}

		if dryRun {
			log.Printf("[dry run] would apply %d delta(s) for %s (%s)", len(deltas), r.id, r.typ)
			reprojected++
			continue
		}

		tx, err := db.BeginTx()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := projector.Apply(tx, deltas); err != nil {
			tx.Rollback()
			log.Printf("warning: apply %s (%s) failed: %v", r.id, r.typ, err)
			skipped++
			continue
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		reprojected++
	}

	log.Printf("reprojected %d event(s), skipped %d", reprojected, skipped)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
