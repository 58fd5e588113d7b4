package identity

import (
	"testing"

	"github.com/shojbahmed330/voicebook/internal/domain"
)

func TestMediaUIDStable(t *testing.T) {
	id := domain.UserID("Zk9qW3x1YvR2tU8oP5mN4cL7")
	first := MediaUID(id)
	for i := 0; i < 100; i++ {
		if got := MediaUID(id); got != first {
			t.Fatalf("mapping must be stable: got %d then %d", first, got)
		}
	}
}

func TestMediaUIDRange(t *testing.T) {
	ids := []domain.UserID{"", "a", "user-1", "user-2", "7f3b9c2e-1d4a-4e8f-9b6c-2a1d0e5f8c7b"}
	for _, id := range ids {
		if got := MediaUID(id); got >= 10_000_000 {
			t.Fatalf("uid %d for %q out of range", got, id)
		}
	}
}

func TestMediaUIDDistinguishesUsers(t *testing.T) {
	if MediaUID("alice") == MediaUID("bob") {
		t.Fatalf("distinct short ids should not collide")
	}
}
