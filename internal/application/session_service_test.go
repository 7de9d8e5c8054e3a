package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/readingattendance/readingd/internal/application"
	"github.com/readingattendance/readingd/internal/persistence"
	"github.com/readingattendance/readingd/internal/persistence/memory"
	"github.com/readingattendance/readingd/internal/testfixtures"
)

func newSessionFixture(t *testing.T) (*testfixtures.ServiceFactory, *memory.Store, *application.SessionService, persistence.User) {
	t.Helper()
	factory := testfixtures.NewServiceFactory()
	store := memory.New()
	user := testfixtures.NewUser()
	testfixtures.Seed(t, store, user)
	return factory, store, factory.NewSessionService(store, application.SessionConfig{}), user
}

func TestSessionService_CompleteSession(t *testing.T) {
	t.Parallel()

	t.Run("requires sixty minutes then awards exactly one point", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory, store, svc, user := newSessionFixture(t)
		caller := application.Principal{UserID: user.ID}

		session, err := svc.StartSession(ctx, caller)
		if err != nil {
			t.Fatalf("StartSession returned error: %v", err)
		}

		factory.Clock.AdvanceMinutes(59)
		if _, err := svc.CompleteSession(ctx, caller, session.ID); !errors.Is(err, application.ErrFailedPrecondition) {
			t.Fatalf("expected FailedPrecondition at 59 minutes, got %v", err)
		}

		factory.Clock.AdvanceMinutes(2)
		result, err := svc.CompleteSession(ctx, caller, session.ID)
		if err != nil {
			t.Fatalf("CompleteSession returned error: %v", err)
		}
		if result.Points != 1 || result.DurationMinutes != 61 {
			t.Fatalf("unexpected result %+v", result)
		}

		if _, err := svc.CompleteSession(ctx, caller, session.ID); !errors.Is(err, application.ErrAlreadyExists) {
			t.Fatalf("expected AlreadyExists on second completion, got %v", err)
		}

		stored, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession returned error: %v", err)
		}
		if !stored.Completed || !stored.PointsAwarded || stored.AutoCompleted {
			t.Fatalf("unexpected stored session %+v", stored)
		}
		if stored.DurationMinutes == nil || *stored.DurationMinutes != 61 {
			t.Fatalf("expected duration 61, got %v", stored.DurationMinutes)
		}

		reloaded, _ := store.GetUser(ctx, user.ID)
		if reloaded.Points != 1 {
			t.Fatalf("expected 1 point, got %d", reloaded.Points)
		}
		if reloaded.LastSessionCompletedAt == nil {
			t.Fatalf("expected last completion time to be recorded")
		}
	})

	t.Run("floors the duration to whole minutes", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory, _, svc, user := newSessionFixture(t)
		caller := application.Principal{UserID: user.ID}

		session, err := svc.StartSession(ctx, caller)
		if err != nil {
			t.Fatalf("StartSession returned error: %v", err)
		}
		factory.Clock.Advance(75*time.Minute + 59*time.Second)

		result, err := svc.CompleteSession(ctx, caller, session.ID)
		if err != nil {
			t.Fatalf("CompleteSession returned error: %v", err)
		}
		if result.DurationMinutes != 75 {
			t.Fatalf("expected 75 minutes, got %d", result.DurationMinutes)
		}
	})

	t.Run("rejects sessions owned by another user", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory, store, svc, user := newSessionFixture(t)
		other := testfixtures.NewUser()
		testfixtures.Seed(t, store, other)

		session, err := svc.StartSession(ctx, application.Principal{UserID: user.ID})
		if err != nil {
			t.Fatalf("StartSession returned error: %v", err)
		}
		factory.Clock.AdvanceMinutes(90)

		if _, err := svc.CompleteSession(ctx, application.Principal{UserID: other.ID}, session.ID); !errors.Is(err, application.ErrPermissionDenied) {
			t.Fatalf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("reports missing sessions", func(t *testing.T) {
		t.Parallel()

		_, _, svc, user := newSessionFixture(t)
		_, err := svc.CompleteSession(context.Background(), application.Principal{UserID: user.ID}, "missing")
		if !errors.Is(err, application.ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("requires an authenticated caller", func(t *testing.T) {
		t.Parallel()

		_, _, svc, _ := newSessionFixture(t)
		_, err := svc.CompleteSession(context.Background(), application.Principal{}, "session-1")
		if !errors.Is(err, application.ErrUnauthenticated) {
			t.Fatalf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("refuses disconnected sessions", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory, _, svc, user := newSessionFixture(t)
		caller := application.Principal{UserID: user.ID}

		session, err := svc.StartSession(ctx, caller)
		if err != nil {
			t.Fatalf("StartSession returned error: %v", err)
		}
		factory.Clock.AdvanceMinutes(10)
		if err := svc.MarkDisconnected(ctx, caller, session.ID); err != nil {
			t.Fatalf("MarkDisconnected returned error: %v", err)
		}
		factory.Clock.AdvanceMinutes(60)

		if _, err := svc.CompleteSession(ctx, caller, session.ID); !errors.Is(err, application.ErrFailedPrecondition) {
			t.Fatalf("expected FailedPrecondition, got %v", err)
		}
	})
}

func TestSessionService_StartSession(t *testing.T) {
	t.Parallel()

	t.Run("allows only one active session", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		_, _, svc, user := newSessionFixture(t)
		caller := application.Principal{UserID: user.ID}

		if _, err := svc.StartSession(ctx, caller); err != nil {
			t.Fatalf("StartSession returned error: %v", err)
		}
		if _, err := svc.StartSession(ctx, caller); !errors.Is(err, application.ErrAlreadyExists) {
			t.Fatalf("expected AlreadyExists, got %v", err)
		}
	})

	t.Run("requires payment", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		store := memory.New()
		unpaid := testfixtures.NewUser(testfixtures.WithUserUnpaid())
		testfixtures.Seed(t, store, unpaid)
		svc := factory.NewSessionService(store, application.SessionConfig{})

		_, err := svc.StartSession(context.Background(), application.Principal{UserID: unpaid.ID})
		if !errors.Is(err, application.ErrPermissionDenied) {
			t.Fatalf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("reports unknown users", func(t *testing.T) {
		t.Parallel()

		_, _, svc, _ := newSessionFixture(t)
		_, err := svc.StartSession(context.Background(), application.Principal{UserID: "ghost"})
		if !errors.Is(err, application.ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("forfeits a disconnected session without a point", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory, store, svc, user := newSessionFixture(t)
		caller := application.Principal{UserID: user.ID}

		first, err := svc.StartSession(ctx, caller)
		if err != nil {
			t.Fatalf("StartSession returned error: %v", err)
		}
		factory.Clock.AdvanceMinutes(20)
		if err := svc.MarkDisconnected(ctx, caller, first.ID); err != nil {
			t.Fatalf("MarkDisconnected returned error: %v", err)
		}
		factory.Clock.AdvanceMinutes(70)

		second, err := svc.StartSession(ctx, caller)
		if err != nil {
			t.Fatalf("StartSession after disconnect returned error: %v", err)
		}
		if second.ID == first.ID {
			t.Fatalf("expected a new session")
		}

		closed, _ := store.GetSession(ctx, first.ID)
		if !closed.Completed || closed.PointsAwarded {
			t.Fatalf("expected forfeited session, got %+v", closed)
		}
		if closed.DurationMinutes == nil || *closed.DurationMinutes != 90 {
			t.Fatalf("expected duration 90, got %v", closed.DurationMinutes)
		}
		reloaded, _ := store.GetUser(ctx, user.ID)
		if reloaded.Points != 0 {
			t.Fatalf("expected no points, got %d", reloaded.Points)
		}
	})
}

func TestSessionService_MarkDisconnected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory, store, svc, user := newSessionFixture(t)
	caller := application.Principal{UserID: user.ID}

	session, err := svc.StartSession(ctx, caller)
	if err != nil {
		t.Fatalf("StartSession returned error: %v", err)
	}
	factory.Clock.AdvanceMinutes(5)

	if err := svc.MarkDisconnected(ctx, caller, session.ID); err != nil {
		t.Fatalf("first MarkDisconnected returned error: %v", err)
	}
	firstAt := factory.Clock.Now()
	factory.Clock.AdvanceMinutes(5)
	if err := svc.MarkDisconnected(ctx, caller, session.ID); err != nil {
		t.Fatalf("second MarkDisconnected returned error: %v", err)
	}

	stored, _ := store.GetSession(ctx, session.ID)
	if !stored.Disconnected || stored.DisconnectedAt == nil || !stored.DisconnectedAt.Equal(firstAt) {
		t.Fatalf("expected the first disconnect to stick, got %+v", stored)
	}

	other := testfixtures.NewUser()
	testfixtures.Seed(t, store, other)
	if err := svc.MarkDisconnected(ctx, application.Principal{UserID: other.ID}, session.ID); !errors.Is(err, application.ErrPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestSessionService_VerifySession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, store, svc, user := newSessionFixture(t)
	caller := application.Principal{UserID: user.ID}

	session, err := svc.StartSession(ctx, caller)
	if err != nil {
		t.Fatalf("StartSession returned error: %v", err)
	}

	result, err := svc.VerifySession(ctx, caller, session.ID)
	if err != nil {
		t.Fatalf("VerifySession returned error: %v", err)
	}
	if !result.Found || result.Session == nil || result.Session.ID != session.ID {
		t.Fatalf("unexpected verify result %+v", result)
	}

	logs, err := store.ListSessionLogs(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListSessionLogs returned error: %v", err)
	}
	if len(logs) != 1 || logs[0].EventType != "manual_verification" || logs[0].UserID != user.ID {
		t.Fatalf("expected one manual_verification log, got %+v", logs)
	}
	if want := `{"completed":false,"pointsAwarded":false,"disconnected":false}`; logs[0].EventData != want {
		t.Fatalf("expected event data %s, got %s", want, logs[0].EventData)
	}

	missing, err := svc.VerifySession(ctx, caller, "missing")
	if err != nil {
		t.Fatalf("VerifySession for missing session returned error: %v", err)
	}
	if missing.Found || missing.Session != nil || missing.SessionID != "missing" {
		t.Fatalf("unexpected result for missing session %+v", missing)
	}

	t.Run("rejects other users", func(t *testing.T) {
		intruder := testfixtures.NewUser()
		testfixtures.Seed(t, store, intruder)

		result, err := svc.VerifySession(ctx, application.Principal{UserID: intruder.ID}, session.ID)
		if !errors.Is(err, application.ErrPermissionDenied) {
			t.Fatalf("expected PermissionDenied, got %v", err)
		}
		if result.Found || result.Session != nil {
			t.Fatalf("expected no session snapshot, got %+v", result)
		}

		logs, err := store.ListSessionLogs(ctx, session.ID)
		if err != nil {
			t.Fatalf("ListSessionLogs returned error: %v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("expected only the owner's log entry, got %+v", logs)
		}
	})
}

func TestSessionService_AutoCompleteDue(t *testing.T) {
	t.Parallel()

	t.Run("completes only sessions past the minimum duration", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory := testfixtures.NewServiceFactory()
		store := memory.New()
		base := factory.Clock.Now()

		due := testfixtures.NewUser()
		fresh := testfixtures.NewUser()
		dropped := testfixtures.NewUser()
		testfixtures.Seed(t, store, due, fresh, dropped,
			testfixtures.NewSession(due.ID, testfixtures.WithSessionID("due"), testfixtures.WithSessionStart(base.Add(-61*time.Minute))),
			testfixtures.NewSession(fresh.ID, testfixtures.WithSessionID("fresh"), testfixtures.WithSessionStart(base.Add(-30*time.Minute))),
			testfixtures.NewSession(dropped.ID, testfixtures.WithSessionID("dropped"),
				testfixtures.WithSessionStart(base.Add(-120*time.Minute)),
				testfixtures.WithSessionDisconnected(base.Add(-100*time.Minute))),
		)

		svc := factory.NewSessionService(store, application.SessionConfig{})
		result, err := svc.AutoCompleteDue(ctx)
		if err != nil {
			t.Fatalf("AutoCompleteDue returned error: %v", err)
		}
		if result.Completed != 1 || result.Scanned != 1 {
			t.Fatalf("unexpected sweep result %+v", result)
		}

		completed, _ := store.GetSession(ctx, "due")
		if !completed.Completed || !completed.AutoCompleted || !completed.PointsAwarded {
			t.Fatalf("expected auto-completed session, got %+v", completed)
		}
		if completed.DurationMinutes == nil || *completed.DurationMinutes != 61 {
			t.Fatalf("expected duration 61, got %v", completed.DurationMinutes)
		}
		for _, id := range []string{"fresh", "dropped"} {
			untouched, _ := store.GetSession(ctx, id)
			if untouched.Completed {
				t.Fatalf("session %s should not be completed", id)
			}
		}

		reloaded, _ := store.GetUser(ctx, due.ID)
		if reloaded.Points != 1 {
			t.Fatalf("expected 1 point, got %d", reloaded.Points)
		}
	})

	t.Run("walks every batch", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory := testfixtures.NewServiceFactory()
		store := memory.New()
		start := factory.Clock.Now().Add(-2 * time.Hour)

		for i := 0; i < 5; i++ {
			user := testfixtures.NewUser()
			testfixtures.Seed(t, store, user, testfixtures.NewSession(user.ID, testfixtures.WithSessionStart(start)))
		}

		svc := factory.NewSessionService(store, application.SessionConfig{SweepBatchSize: 2})
		result, err := svc.AutoCompleteDue(ctx)
		if err != nil {
			t.Fatalf("AutoCompleteDue returned error: %v", err)
		}
		if result.Completed != 5 {
			t.Fatalf("expected 5 completions, got %+v", result)
		}
	})

	t.Run("moves past a batch of failures", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		factory := testfixtures.NewServiceFactory()
		store := &brokenCompletionStore{Store: memory.New(), broken: map[string]bool{"s1": true, "s2": true}}
		start := factory.Clock.Now().Add(-2 * time.Hour)

		for i, id := range []string{"s1", "s2", "s3"} {
			user := testfixtures.NewUser()
			testfixtures.Seed(t, store, user, testfixtures.NewSession(user.ID,
				testfixtures.WithSessionID(id),
				testfixtures.WithSessionStart(start.Add(time.Duration(i)*time.Minute))))
		}

		svc := factory.NewSessionService(store, application.SessionConfig{SweepBatchSize: 2})
		result, err := svc.AutoCompleteDue(ctx)
		if err == nil {
			t.Fatal("expected the failed completions to be reported")
		}
		if result.Scanned != 3 || result.Completed != 1 {
			t.Fatalf("unexpected sweep result %+v", result)
		}
		completed, _ := store.GetSession(ctx, "s3")
		if !completed.Completed {
			t.Fatalf("expected s3 to be completed, got %+v", completed)
		}
	})
}

// brokenCompletionStore fails completion of the listed sessions.
type brokenCompletionStore struct {
	*memory.Store
	broken map[string]bool
}

func (s *brokenCompletionStore) WithinTx(ctx context.Context, fn func(tx persistence.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx persistence.Tx) error {
		return fn(brokenCompletionTx{Tx: tx, broken: s.broken})
	})
}

type brokenCompletionTx struct {
	persistence.Tx
	broken map[string]bool
}

func (tx brokenCompletionTx) CompleteSession(ctx context.Context, completion persistence.SessionCompletion) (bool, error) {
	if tx.broken[completion.SessionID] {
		return false, errors.New("write failed")
	}
	return tx.Tx.CompleteSession(ctx, completion)
}

func TestSessionService_ConcurrentCompletionAwardsOnePoint(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) persistence.Store{
		"memory": func(*testing.T) persistence.Store { return memory.New() },
		"sqlite": func(t *testing.T) persistence.Store { return testfixtures.NewSQLStoreHarness(t) },
	}

	for name, open := range stores {
		open := open
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			factory := testfixtures.NewServiceFactory()
			store := open(t)
			user := testfixtures.NewUser()
			session := testfixtures.NewSession(user.ID, testfixtures.WithSessionStart(factory.Clock.Now().Add(-65*time.Minute)))
			testfixtures.Seed(t, store, user, session)

			svc := factory.NewSessionService(store, application.SessionConfig{})
			caller := application.Principal{UserID: user.ID}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				sweeps    int
			)
			for i := 0; i < 4; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					if _, err := svc.CompleteSession(ctx, caller, session.ID); err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					} else if !errors.Is(err, application.ErrAlreadyExists) {
						t.Errorf("unexpected completion error: %v", err)
					}
				}()
				go func() {
					defer wg.Done()
					result, err := svc.AutoCompleteDue(ctx)
					if err != nil {
						t.Errorf("unexpected sweep error: %v", err)
						return
					}
					mu.Lock()
					sweeps += result.Completed
					mu.Unlock()
				}()
			}
			wg.Wait()

			if successes+sweeps != 1 {
				t.Fatalf("expected exactly one completion, got %d manual and %d scheduled", successes, sweeps)
			}
			reloaded, err := store.GetUser(ctx, user.ID)
			if err != nil {
				t.Fatalf("GetUser returned error: %v", err)
			}
			if reloaded.Points != 1 {
				t.Fatalf("expected exactly 1 point, got %d", reloaded.Points)
			}
		})
	}
}

func TestSessionService_PointsEqualCompletions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory, store, svc, user := newSessionFixture(t)
	caller := application.Principal{UserID: user.ID}

	const rounds = 5
	for i := 0; i < rounds; i++ {
		session, err := svc.StartSession(ctx, caller)
		if err != nil {
			t.Fatalf("round %d: StartSession returned error: %v", i, err)
		}
		factory.Clock.AdvanceMinutes(60)
		if _, err := svc.CompleteSession(ctx, caller, session.ID); err != nil {
			t.Fatalf("round %d: CompleteSession returned error: %v", i, err)
		}
	}

	reloaded, _ := store.GetUser(ctx, user.ID)
	if reloaded.Points != rounds {
		t.Fatalf("expected %d points, got %d", rounds, reloaded.Points)
	}
}

func TestSessionService_CleanupSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	store := memory.New()
	now := factory.Clock.Now()

	user := testfixtures.NewUser()
	old := testfixtures.NewSession(user.ID, testfixtures.WithSessionID("old"), testfixtures.WithSessionStart(now.Add(-31*24*time.Hour)),
		testfixtures.WithSessionCompleted(now.Add(-31*24*time.Hour+time.Hour), true))
	recent := testfixtures.NewSession(user.ID, testfixtures.WithSessionID("recent"), testfixtures.WithSessionStart(now.Add(-29*24*time.Hour)),
		testfixtures.WithSessionCompleted(now.Add(-29*24*time.Hour+time.Hour), true))
	testfixtures.Seed(t, store, user, old, recent)

	svc := factory.NewSessionService(store, application.SessionConfig{})
	deleted, err := svc.CleanupSessions(ctx)
	if err != nil {
		t.Fatalf("CleanupSessions returned error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted session, got %d", deleted)
	}
	if _, err := store.GetSession(ctx, "old"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected old session to be deleted, got %v", err)
	}
	if _, err := store.GetSession(ctx, "recent"); err != nil {
		t.Fatalf("expected recent session to remain, got %v", err)
	}
}

type failingSessionStore struct {
	*memory.Store
}

func (failingSessionStore) GetSession(context.Context, string) (persistence.Session, error) {
	return persistence.Session{}, errors.New("disk unavailable")
}

func TestSessionService_RecordsInternalErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	store := failingSessionStore{Store: memory.New()}
	user := testfixtures.NewUser()
	testfixtures.Seed(t, store, user)

	svc := factory.NewSessionService(store, application.SessionConfig{})
	_, err := svc.VerifySession(ctx, application.Principal{UserID: user.ID}, "session-x")
	if !errors.Is(err, application.ErrInternal) {
		t.Fatalf("expected Internal, got %v", err)
	}
	if got := application.PublicMessage(err); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}

	logs := store.ErrorLogs()
	if len(logs) != 1 || logs[0].Operation != "verifySession" || logs[0].UserID != user.ID {
		t.Fatalf("expected one error log entry, got %+v", logs)
	}
}
