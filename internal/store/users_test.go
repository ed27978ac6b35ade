package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/corrente/internal/db"
	"github.com/erazemk/corrente/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleDonor)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleDonor {
		t.Errorf("expected role 'doador', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := CreateUser(context.Background(), database, "x", "hash", "visitante")
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleRequester)
	CreateUser(ctx, database, "b", "hash", model.RoleManager)
	CreateUser(ctx, database, "c", "hash", model.RoleRequester)

	users, err := ListUsers(ctx, database, "")
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Errorf("expected 3 users, got %d", len(users))
	}

	requesters, _ := ListUsers(ctx, database, model.RoleRequester)
	if len(requesters) != 2 {
		t.Errorf("expected 2 requesters, got %d", len(requesters))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleDonor)
	DeleteUser(ctx, database, user.ID)

	users, _ := ListUsers(ctx, database, "")
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}

	// The username is free again.
	if _, err := CreateUser(ctx, database, "deleteme", "hash", model.RoleDonor); err != nil {
		t.Errorf("expected username reuse after delete, got %v", err)
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleDonor)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "maria", "hash", model.RoleRequester)
	lat, lng := -23.5505, -46.6333
	loc := model.Location{
		Address:      "Rua Augusta, 1500",
		Neighborhood: "Consolação",
		City:         "São Paulo",
		State:        "SP",
		PostalCode:   "01304-001",
		Lat:          &lat,
		Lng:          &lng,
	}
	if err := UpdateUserProfile(ctx, database, user.ID, "Maria Silva", loc); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.Name != "Maria Silva" {
		t.Errorf("expected name 'Maria Silva', got %q", got.Name)
	}
	if got.Location.Neighborhood != "Consolação" || got.Location.PostalCode != "01304-001" {
		t.Errorf("unexpected location %+v", got.Location)
	}
	if got.Location.Lat == nil || *got.Location.Lat != lat {
		t.Errorf("expected latitude %v, got %v", lat, got.Location.Lat)
	}
}

func TestUpdateUserRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "joao", "hash", model.RoleDonor)
	if err := UpdateUserRole(ctx, database, user.ID, model.RoleDistributor); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleDistributor {
		t.Errorf("expected role 'distribuidor', got %q", got.Role)
	}

	if err := UpdateUserRole(ctx, database, user.ID, "chefe"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
