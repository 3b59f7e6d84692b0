package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"bookings/backend/internal/domain"
	"bookings/backend/internal/store"
)

const maxReasonLength = 200

const (
	msgWeekdaysOnly = "Appointments are only available on weekdays (Mon-Fri)"
	msgPastSlot     = "Cannot book appointments in the past"
	msgPastDate     = "This date is in the past"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "")
	tenDigits       = regexp.MustCompile(`^[0-9]{10}$`)
)

type ValidationError struct {
	Field string
	msg   string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(field, msg string) error {
	return &ValidationError{Field: field, msg: msg}
}

// StorageError is a store failure unrelated to booking rules. Callers may
// retry the same request later.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the store call ran out of time or was cancelled.
func (e *StorageError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, context.Canceled)
}

// storageError passes booking sentinels through and wraps everything else.
func storageError(op string, err error) error {
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithPolicy(p domain.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

type Service struct {
	repo   store.AppointmentRepository
	policy domain.Policy
	now    func() time.Time
	log    *slog.Logger
}

func NewService(repo store.AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: domain.DefaultPolicy(),
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.appointments"))
	return s
}

func (s *Service) Policy() domain.Policy {
	return s.policy
}

func (s *Service) invalidSlotMessage() string {
	return fmt.Sprintf("Invalid time slot. Business hours are %s - %s in %d-minute increments",
		s.policy.Open, s.policy.Close, int(s.policy.Step/time.Minute))
}

type CreateInput struct {
	Date   string
	Time   string
	Name   string
	Email  string
	Phone  string
	Reason string
}

// Create books a slot. Rules are checked in a fixed order and the first
// failure is returned; nothing is written unless all of them pass.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	now := s.now()

	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	phone := strings.TrimSpace(in.Phone)
	reason := strings.TrimSpace(in.Reason)
	dateStr := strings.TrimSpace(in.Date)
	label := strings.TrimSpace(in.Time)

	if dateStr == "" {
		return domain.Appointment{}, validationError("date", "Date is required")
	}
	if label == "" {
		return domain.Appointment{}, validationError("time", "Time is required")
	}
	if name == "" {
		return domain.Appointment{}, validationError("name", "Name is required")
	}
	if email == "" || !emailPattern.MatchString(email) {
		return domain.Appointment{}, validationError("email", "Valid email is required")
	}
	if phone != "" && !tenDigits.MatchString(phoneSeparators.Replace(phone)) {
		return domain.Appointment{}, validationError("phone", "Phone number must contain exactly 10 digits")
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return domain.Appointment{}, validationError("reason", "Reason must be 200 characters or less")
	}

	date, err := domain.ParseDate(dateStr)
	if err != nil {
		return domain.Appointment{}, validationError("date", "Invalid date format")
	}
	if !s.policy.IsBookableWeekday(date) {
		return domain.Appointment{}, validationError("date", msgWeekdaysOnly)
	}

	slot, err := domain.ParseSlot(label)
	if err != nil {
		return domain.Appointment{}, validationError("time", s.invalidSlotMessage())
	}
	if s.policy.IsPast(date, slot, now) {
		return domain.Appointment{}, validationError("time", msgPastSlot)
	}
	if !s.policy.IsBusinessSlot(slot) {
		return domain.Appointment{}, validationError("time", s.invalidSlotMessage())
	}

	_, err = s.repo.FindBySlot(ctx, date, slot.String())
	switch {
	case err == nil:
		return domain.Appointment{}, store.ErrConflict
	case !errors.Is(err, store.ErrNotFound):
		return domain.Appointment{}, storageError("find slot", err)
	}

	appt, err := s.repo.Create(ctx, domain.Appointment{
		Date:      date,
		Time:      slot.String(),
		Name:      name,
		Email:     email,
		Phone:     phone,
		Reason:    reason,
		CreatedAt: now.UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.log.Debug("slot taken at insert", slog.String("date", date.String()), slog.String("time", slot.String()))
		}
		return domain.Appointment{}, storageError("create appointment", err)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Appointment, error) {
	appts, err := s.repo.List(ctx)
	if err != nil {
		return nil, storageError("list appointments", err)
	}
	return appts, nil
}

func (s *Service) ListForDay(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	appts, err := s.repo.ListForDay(ctx, date)
	if err != nil {
		return nil, storageError("list day", err)
	}
	return appts, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("id", "Invalid appointment ID format")
	}
	appt, err := s.repo.Delete(ctx, id)
	if err != nil {
		return domain.Appointment{}, storageError("delete appointment", err)
	}
	return appt, nil
}

type Availability struct {
	Date           domain.Date
	AvailableSlots []string
	BookedSlots    []string
	Message        string
}

// Availability reports the open and taken slots of a day. Weekends are a
// validation error; days already over succeed with no slots and a message.
func (s *Service) Availability(ctx context.Context, dateStr string) (Availability, error) {
	now := s.now()

	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return Availability{}, validationError("date", "Date parameter is required (YYYY-MM-DD)")
	}
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		return Availability{}, validationError("date", "Invalid date format. Use YYYY-MM-DD")
	}
	if !s.policy.IsBookableWeekday(date) {
		return Availability{}, validationError("date", msgWeekdaysOnly)
	}
	if date.Before(s.policy.Today(now)) {
		return Availability{
			Date:           date,
			AvailableSlots: []string{},
			BookedSlots:    []string{},
			Message:        msgPastDate,
		}, nil
	}

	appts, err := s.repo.ListForDay(ctx, date)
	if err != nil {
		return Availability{}, storageError("list day", err)
	}

	booked := make(map[domain.Slot]struct{}, len(appts))
	bookedLabels := make([]string, 0, len(appts))
	for _, a := range appts {
		slot, err := domain.ParseSlot(a.Time)
		if err != nil {
			s.log.Warn("stored appointment has malformed time", slog.String("appointment_id", a.ID.String()), slog.String("time", a.Time))
			continue
		}
		if _, dup := booked[slot]; dup {
			continue
		}
		booked[slot] = struct{}{}
		bookedLabels = append(bookedLabels, slot.String())
	}
	sort.Strings(bookedLabels)

	return Availability{
		Date:           date,
		AvailableSlots: domain.SlotLabels(s.policy.AvailableSlots(date, booked, now)),
		BookedSlots:    bookedLabels,
	}, nil
}
