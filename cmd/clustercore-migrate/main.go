package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/clustercore", "clustercore state directory")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to backup the database before migration (default: <data-dir>/clustercore.db.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("clustercore database migration tool - jobs -> hash_jobs")
	log.Println("========================================================")

	dbPath := filepath.Join(*dataDir, "clustercore.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", dbPath)
	}

	log.Printf("Database: %s", dbPath)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("backup created successfully")
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := migrateJobsToHashJobs(db, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("\nMigration completed successfully.")
		log.Println("Old 'jobs' bucket has been preserved for rollback if needed.")
		log.Println("After verifying the migration, you can manually delete it using:")
		log.Printf("  bolt db rm %s jobs", dbPath)
	}
}

// migrateJobsToHashJobs copies every record out of a legacy "jobs" bucket
// (used before the coordinator gained a dedicated hash-job archive) into
// the current "hash_jobs" bucket. Coordinator.LoadPersisted only ever
// reads "hash_jobs", so a node upgraded in place without running this
// tool would silently lose every job it had archived pre-upgrade.
func migrateJobsToHashJobs(db *bolt.DB, dryRun bool) error {
	var jobCount int
	var migratedCount int

	err := db.View(func(tx *bolt.Tx) error {
		jobsBucket := tx.Bucket([]byte("jobs"))
		if jobsBucket == nil {
			log.Println("No legacy 'jobs' bucket found - database is already using the current schema")
			return nil
		}

		hashJobsBucket := tx.Bucket([]byte("hash_jobs"))
		if hashJobsBucket != nil && hashJobsBucket.Stats().KeyN > 0 {
			log.Println("Warning: 'hash_jobs' bucket already has entries; migrated records will be merged in")
		}

		jobsBucket.ForEach(func(k, v []byte) error {
			jobCount++
			return nil
		})

		log.Printf("Found %d legacy job records to migrate", jobCount)
		return nil
	})
	if err != nil {
		return err
	}

	if jobCount == 0 {
		log.Println("No legacy job records found to migrate")
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		if dryRun {
			log.Println("\n[DRY RUN] Would perform the following operations:")
			log.Println("1. Create 'hash_jobs' bucket if missing")
			log.Println("2. Copy all records from 'jobs' to 'hash_jobs'")
			log.Printf("3. Migrate %d job records", jobCount)
			log.Println("4. Preserve 'jobs' bucket for rollback")
			return nil
		}

		hashJobsBucket, err := tx.CreateBucketIfNotExists([]byte("hash_jobs"))
		if err != nil {
			return fmt.Errorf("failed to create hash_jobs bucket: %w", err)
		}

		jobsBucket := tx.Bucket([]byte("jobs"))
		if jobsBucket == nil {
			return nil // already migrated
		}

		log.Println("\nMigrating jobs to hash_jobs...")
		err = jobsBucket.ForEach(func(k, v []byte) error {
			var data map[string]interface{}
			if err := json.Unmarshal(v, &data); err != nil {
				log.Printf("Warning: skipping invalid JSON for key %s: %v", k, err)
				return nil
			}

			jobID, _ := data["JobID"].(string)
			key := k
			if jobID != "" {
				key = []byte(jobID)
			}

			if err := hashJobsBucket.Put(key, v); err != nil {
				return fmt.Errorf("failed to copy job %s: %w", k, err)
			}

			migratedCount++
			if migratedCount%10 == 0 {
				log.Printf("  migrated %d/%d...", migratedCount, jobCount)
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.Printf("migrated %d/%d jobs to hash_jobs", migratedCount, jobCount)
		log.Println("preserved 'jobs' bucket for rollback")
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
