package store

import (
	"context"

	"github.com/google/uuid"

	"bookings/backend/internal/domain"
)

// AppointmentRepository persists appointments. Implementations must reject
// a second appointment for the same date and time with ErrConflict, even
// when both inserts race.
type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	FindBySlot(ctx context.Context, date domain.Date, slot string) (domain.Appointment, error)
	ListForDay(ctx context.Context, date domain.Date) ([]domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}
