package testfixtures

import (
	"context"
	"testing"

	"github.com/readingattendance/readingd/internal/application"
	"github.com/readingattendance/readingd/internal/persistence/memory"
)

func TestServiceFactoryNewSessionService(t *testing.T) {
	factory := NewServiceFactory()
	store := memory.New()
	user := NewUser()
	Seed(t, store, user)

	svc := factory.NewSessionService(store, application.SessionConfig{})
	session, err := svc.StartSession(context.Background(), application.Principal{UserID: user.ID})
	if err != nil {
		t.Fatalf("StartSession returned error: %v", err)
	}

	if session.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", session.ID)
	}
	if !session.StartAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected start %v, got %v", factory.Clock.Now(), session.StartAt)
	}
}

func TestSQLStoreHarnessIsMigrated(t *testing.T) {
	store := NewSQLStoreHarness(t)
	user := NewUser()
	Seed(t, store, user)

	count, err := store.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}
