package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"bookings/backend/internal/domain"
	"bookings/backend/internal/store"
)

var monday = domain.Date{Year: 2025, Month: time.January, Day: 6}

func TestAppointmentRepo_CreateAssignsIDAndRejectsTakenSlot(t *testing.T) {
	r := NewAppointmentRepo()
	ctx := context.Background()

	a, err := r.Create(ctx, domain.Appointment{Date: monday, Time: "09:00", Name: "Jane Doe", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Fatalf("expected id to be assigned")
	}
	if a.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	_, err = r.Create(ctx, domain.Appointment{Date: monday, Time: "09:00", Name: "John Roe", Email: "john@example.com"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrConflict)
	}

	got, err := r.FindBySlot(ctx, monday, "09:00")
	if err != nil {
		t.Fatalf("FindBySlot error: %v", err)
	}
	if got.ID != a.ID || got.Name != "Jane Doe" {
		t.Fatalf("stored appointment changed: %+v", got)
	}
}

func TestAppointmentRepo_ConcurrentCreateSameSlot(t *testing.T) {
	r := NewAppointmentRepo()
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := r.Create(ctx, domain.Appointment{Date: monday, Time: "10:30", Name: "n", Email: "n@example.com"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if succeeded != 1 || conflicts != workers-1 {
		t.Fatalf("succeeded=%d conflicts=%d, want 1 and %d", succeeded, conflicts, workers-1)
	}
}

func TestAppointmentRepo_ListOrdersByDateThenTime(t *testing.T) {
	r := NewAppointmentRepo()
	ctx := context.Background()
	tuesday := domain.Date{Year: 2025, Month: time.January, Day: 7}

	for _, in := range []struct {
		d    domain.Date
		slot string
	}{
		{tuesday, "09:00"},
		{monday, "16:30"},
		{monday, "09:30"},
	} {
		if _, err := r.Create(ctx, domain.Appointment{Date: in.d, Time: in.slot, Name: "n", Email: "n@example.com"}); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	all, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	want := []string{"2025-01-06 09:30", "2025-01-06 16:30", "2025-01-07 09:00"}
	if len(all) != len(want) {
		t.Fatalf("len = %d, want %d", len(all), len(want))
	}
	for i, a := range all {
		if got := a.Date.String() + " " + a.Time; got != want[i] {
			t.Fatalf("all[%d] = %s, want %s", i, got, want[i])
		}
	}

	day, err := r.ListForDay(ctx, monday)
	if err != nil {
		t.Fatalf("ListForDay error: %v", err)
	}
	if len(day) != 2 || day[0].Time != "09:30" || day[1].Time != "16:30" {
		t.Fatalf("ListForDay = %+v", day)
	}
}

func TestAppointmentRepo_DeleteFreesSlotAndIsNotRepeatable(t *testing.T) {
	r := NewAppointmentRepo()
	ctx := context.Background()

	a, err := r.Create(ctx, domain.Appointment{Date: monday, Time: "11:00", Name: "n", Email: "n@example.com"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	removed, err := r.Delete(ctx, a.ID)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if removed.ID != a.ID {
		t.Fatalf("removed id = %s, want %s", removed.ID, a.ID)
	}
	if _, err := r.Delete(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete err = %v, want %v", err, store.ErrNotFound)
	}
	if _, err := r.FindBySlot(ctx, monday, "11:00"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindBySlot err = %v, want %v", err, store.ErrNotFound)
	}
	if _, err := r.Create(ctx, domain.Appointment{Date: monday, Time: "11:00", Name: "m", Email: "m@example.com"}); err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}
}

func TestAppointmentRepo_HonorsCanceledContext(t *testing.T) {
	r := NewAppointmentRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.List(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want %v", err, context.Canceled)
	}
}

func TestAppointmentRepo_DuplicateIDIsNotASlotConflict(t *testing.T) {
	r := NewAppointmentRepo()
	ctx := context.Background()
	id := uuid.New()

	if _, err := r.Create(ctx, domain.Appointment{ID: id, Date: monday, Time: "09:00", Name: "Jane Doe", Email: "jane@example.com"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err := r.Create(ctx, domain.Appointment{ID: id, Date: monday, Time: "10:00", Name: "John Roe", Email: "john@example.com"})
	if err == nil {
		t.Fatalf("expected error for duplicate id")
	}
	if errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate id reported as slot conflict: %v", err)
	}
	if !errors.Is(err, errDuplicateID) {
		t.Fatalf("err = %v, want %v", err, errDuplicateID)
	}
	if _, err := r.FindBySlot(ctx, monday, "10:00"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("10:00 must stay free, err = %v", err)
	}
}
