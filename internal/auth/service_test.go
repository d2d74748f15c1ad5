package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/atelierly/backend/internal/models"
)

type memStore struct {
	byEmail map[string]*models.Account
	hashes  map[string]string
}

func newMemStore() *memStore {
	return &memStore{byEmail: map[string]*models.Account{}, hashes: map[string]string{}}
}

func (m *memStore) Create(ctx context.Context, email, passwordHash, displayName, role string) (*models.Account, error) {
	if _, exists := m.byEmail[email]; exists {
		return nil, &pgconn.PgError{Code: "23505"}
	}
	a := &models.Account{ID: uuid.New(), Email: email, DisplayName: displayName, Role: role}
	m.byEmail[email] = a
	m.hashes[email] = passwordHash
	return a, nil
}

func (m *memStore) GetByEmail(ctx context.Context, email string) (*models.Account, string, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return nil, "", nil
	}
	return a, m.hashes[email], nil
}

func TestRegisterHashesPassword(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "secret")

	acc, err := svc.Register(context.Background(), "ada@example.com", "hunter2", "Ada", models.RoleClient)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.Role != models.RoleClient {
		t.Errorf("role = %s", acc.Role)
	}
	hash := store.hashes["ada@example.com"]
	if hash == "hunter2" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
}

func TestRegisterRejectsBadRole(t *testing.T) {
	svc := NewService(newMemStore(), "secret")
	for _, role := range []string{models.RoleArbiter, "admin", ""} {
		if _, err := svc.Register(context.Background(), "x@example.com", "pw", "X", role); err == nil {
			t.Errorf("role %q: expected error", role)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(newMemStore(), "secret")
	if _, err := svc.Register(context.Background(), "ada@example.com", "pw", "Ada", models.RoleArtist); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Register(context.Background(), "ada@example.com", "pw2", "Ada2", models.RoleArtist)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "secret")
	acc, err := svc.Register(context.Background(), "ada@example.com", "hunter2", "Ada", models.RoleArtist)
	if err != nil {
		t.Fatal(err)
	}

	token, err := svc.Login(context.Background(), "ada@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id, role, err := svc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != acc.ID || role != models.RoleArtist {
		t.Errorf("token claims = (%s, %s)", id, role)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "secret")
	if _, err := svc.Register(context.Background(), "ada@example.com", "hunter2", "Ada", models.RoleClient); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(context.Background(), "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@example.com", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	svc := NewService(newMemStore(), "secret")
	other := NewService(newMemStore(), "othersecret")

	if _, err := svc.Register(context.Background(), "ada@example.com", "pw", "Ada", models.RoleClient); err != nil {
		t.Fatal(err)
	}
	token, err := svc.Login(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := other.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("token signed with a different secret must not validate")
	}
}
