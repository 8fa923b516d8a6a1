package store

import (
	"encoding/json"
	"strings"
	"testing"

	"mentormatch/server/internal/model"
)

func TestSanitizeForCacheStripsPasswordHash(t *testing.T) {
	user := model.User{
		ID:           "user-1",
		FullName:     "Test User",
		Email:        "user@test.local",
		PasswordHash: "$2a$10$secret",
		Role:         model.RoleMentee,
	}

	cached := sanitizeForCache(user)
	if cached.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped")
	}
	if cached.ID != user.ID || cached.Email != user.Email || cached.Role != user.Role {
		t.Fatalf("sanitize must not touch other fields: %+v", cached)
	}
	if user.PasswordHash == "" {
		t.Fatalf("sanitize must not mutate the caller's copy")
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "secret") {
		t.Fatalf("serialized cache entry still carries the hash: %s", raw)
	}
}
