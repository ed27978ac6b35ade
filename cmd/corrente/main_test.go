package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/corrente/internal/model"
	"github.com/erazemk/corrente/internal/store"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-d", "x.db", "-i", "30s", "-a", ":9000"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.dbPath != "x.db" || o.allocateEvery != 30*time.Second || o.addr != ":9000" || o.adminUser != "admin" {
		t.Fatalf("unexpected options: %+v", o)
	}

	if _, err := parseFlags([]string{"-i", "-1m"}); err == nil {
		t.Fatal("expected error for negative interval")
	}
	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

func TestInitDatabaseCreatesAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrente.sqlite3")

	database, password, err := initDatabase(path, "root")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	defer database.Close()

	if len(password) != 16 {
		t.Fatalf("expected 16 character password, got %d", len(password))
	}

	u, err := store.GetUserByUsername(context.Background(), database, "root")
	if err != nil || u == nil {
		t.Fatalf("admin not created: %v", err)
	}
	if u.Role != model.RoleAdmin {
		t.Errorf("expected admin role, got %s", u.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		t.Errorf("password does not match hash: %v", err)
	}
}
