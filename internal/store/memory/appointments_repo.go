// Package memory keeps appointments in process memory. It is used for local
// runs without Postgres and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookings/backend/internal/domain"
	"bookings/backend/internal/store"
)

var errDuplicateID = errors.New("memory: duplicate appointment id")

type slotKey struct {
	date domain.Date
	slot string
}

type AppointmentRepo struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]domain.Appointment
	bySlot map[slotKey]uuid.UUID
}

func NewAppointmentRepo() *AppointmentRepo {
	return &AppointmentRepo{
		byID:   make(map[uuid.UUID]domain.Appointment),
		bySlot: make(map[slotKey]uuid.UUID),
	}
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	if err := appt.AssignID(); err != nil {
		return domain.Appointment{}, err
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{date: appt.Date, slot: appt.Time}
	if _, taken := r.bySlot[key]; taken {
		return domain.Appointment{}, store.ErrConflict
	}
	if _, dup := r.byID[appt.ID]; dup {
		return domain.Appointment{}, fmt.Errorf("%w: %s", errDuplicateID, appt.ID)
	}
	r.bySlot[key] = appt.ID
	r.byID[appt.ID] = appt
	return appt, nil
}

func (r *AppointmentRepo) FindBySlot(ctx context.Context, date domain.Date, slot string) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlot[slotKey{date: date, slot: slot}]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *AppointmentRepo) ListForDay(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]domain.Appointment, 0)
	for _, a := range r.byID {
		if a.Date == date {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	sortByDateTime(out)
	return out, nil
}

func (r *AppointmentRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]domain.Appointment, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sortByDateTime(out)
	return out, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.bySlot, slotKey{date: appt.Date, slot: appt.Time})
	return appt, nil
}

func (r *AppointmentRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func sortByDateTime(appts []domain.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date.Before(appts[j].Date)
		}
		return appts[i].Time < appts[j].Time
	})
}
