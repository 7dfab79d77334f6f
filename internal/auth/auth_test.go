package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/conorfennell/attendance/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.CSVStore) {
	t.Helper()
	store, err := storage.OpenCSV(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return NewService(store), store
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// sha256("abc")
		expectedHash := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
		if hash := Hash("abc"); hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		if Hash("pw123") != Hash("pw123") {
			t.Error("Expected hashes for identical passwords to be the same")
		}
	})

	t.Run("different passwords have different hashes", func(t *testing.T) {
		if Hash("pw123") == Hash("PW123") {
			t.Error("Expected hashes for different passwords to be different")
		}
	})
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	if err := svc.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("unexpected error on register: %v", err)
	}

	users, err := store.LoadUsers(ctx)
	if err != nil {
		t.Fatalf("failed to load users: %v", err)
	}
	if len(users) != 1 || users[0].PasswordHash != Hash("pw123") {
		t.Fatalf("Expected one stored user with the hashed password, got %+v", users)
	}

	if ok, err := svc.Authenticate(ctx, "alice", "pw123"); err != nil || !ok {
		t.Errorf("Expected login to succeed, got ok=%v err=%v", ok, err)
	}
	if ok, err := svc.Authenticate(ctx, "alice", "wrong"); err != nil || ok {
		t.Errorf("Expected login with the wrong password to fail, got ok=%v err=%v", ok, err)
	}
	if ok, _ := svc.Authenticate(ctx, "bob", "pw123"); ok {
		t.Error("Expected login for an unknown user to fail")
	}

	if err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.Login(ctx, "alice", "pw123"); err != nil {
		t.Errorf("Expected Login to succeed, got %v", err)
	}
}

func TestRegisterErrors(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	if err := svc.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("unexpected error on register: %v", err)
	}

	testCases := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{name: "duplicate username", username: "alice", password: "other", want: ErrUserExists},
		{name: "empty username", username: "", password: "pw", want: ErrEmptyCredentials},
		{name: "empty password", username: "bob", password: "", want: ErrEmptyCredentials},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Register(ctx, tc.username, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrAuth) {
				t.Errorf("Expected %v to be an auth error", err)
			}
		})
	}

	users, _ := store.LoadUsers(ctx)
	if len(users) != 1 {
		t.Errorf("Expected failed registrations to leave the table untouched, got %+v", users)
	}
}
