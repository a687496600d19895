package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/speedtrap/internal/db"
)

// templateDBPath is a migrated database that each test copies instead of
// running the migrations again.
var templateDBPath string

func TestMain(m *testing.M) {
	os.Exit(runWithTemplateDB(m))
}

func runWithTemplateDB(m *testing.M) int {
	tmpDir, err := os.MkdirTemp("", "speedtrap-api-template-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create template directory: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmpDir)

	templateDBPath = filepath.Join(tmpDir, "template.db")
	template, err := db.NewDB(templateDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise template DB: %v\n", err)
		return 1
	}
	// Fold the WAL into the main file so a plain copy is complete.
	if _, err := template.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "checkpoint template DB: %v\n", err)
		template.Close()
		return 1
	}
	if err := template.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close template DB: %v\n", err)
		return 1
	}

	return m.Run()
}

func cloneTestDB(t *testing.T) string {
	t.Helper()
	if templateDBPath == "" {
		t.Fatal("template DB not initialised")
	}
	dst := filepath.Join(t.TempDir(), "api.db")
	if err := copyFile(templateDBPath, dst); err != nil {
		t.Fatalf("clone template DB: %v", err)
	}
	return dst
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
