package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/payments"
	pkgerrors "github.com/anjiri1684/tutor_ledger/pkg/errors"
	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeBookings mirrors the live-slot unique index and the guarded updates of
// the gorm repository.
type fakeBookings struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*models.Booking
	order    []uuid.UUID
	failNext error
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{rows: map[uuid.UUID]*models.Booking{}}
}

func (f *fakeBookings) Create(_ context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status.IsLive() {
		for _, other := range f.rows {
			if other.Status.IsLive() && other.TeacherID == b.TeacherID && other.SlotKey() == b.SlotKey() {
				return fmt.Errorf("create booking: %w", pkgerrors.ErrSlotConflict)
			}
		}
	}
	cp := *b
	f.rows[b.ID] = &cp
	f.order = append(f.order, b.ID)
	return nil
}

func (f *fakeBookings) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("get booking: %w", pkgerrors.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) GetByOrderReference(_ context.Context, orderRef string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.rows {
		if b.OrderReference != nil && *b.OrderReference == orderRef {
			cp := *b
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get booking by order: %w", pkgerrors.ErrNotFound)
}

func (f *fakeBookings) filter(keep func(*models.Booking) bool) []models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, id := range f.order {
		if b, ok := f.rows[id]; ok && keep(b) {
			out = append(out, *b)
		}
	}
	return out
}

func (f *fakeBookings) FindLive(_ context.Context, teacherID uuid.UUID, date, start, end string) ([]models.Booking, error) {
	key := models.SlotKey(date, start, end)
	return f.filter(func(b *models.Booking) bool {
		return b.TeacherID == teacherID && b.SlotKey() == key && b.Status.IsLive()
	}), nil
}

func (f *fakeBookings) ListOccupying(_ context.Context, teacherID uuid.UUID, fromDate, toDate string) ([]models.Booking, error) {
	return f.filter(func(b *models.Booking) bool {
		return b.TeacherID == teacherID && b.Date >= fromDate && b.Date <= toDate && b.Status.IsLive()
	}), nil
}

func (f *fakeBookings) ListByStudent(_ context.Context, studentID uuid.UUID) ([]models.Booking, error) {
	return f.filter(func(b *models.Booking) bool { return b.StudentID == studentID }), nil
}

func (f *fakeBookings) ListByTeacher(_ context.Context, teacherID uuid.UUID) ([]models.Booking, error) {
	return f.filter(func(b *models.Booking) bool { return b.TeacherID == teacherID }), nil
}

func (f *fakeBookings) ListCommittedOn(_ context.Context, date string) ([]models.Booking, error) {
	out := f.filter(func(b *models.Booking) bool { return b.Date == date && b.Status.IsCommitted() })
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart < out[j].SlotStart })
	return out, nil
}

func statusIn(s models.BookingStatus, from []models.BookingStatus) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func (f *fakeBookings) transition(match func(*models.Booking) bool, from []models.BookingStatus, change models.BookingChange) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return false, err
	}
	for _, b := range f.rows {
		if match(b) && statusIn(b.Status, from) {
			change.Apply(b)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookings) Transition(_ context.Context, id uuid.UUID, from []models.BookingStatus, change models.BookingChange) (bool, error) {
	return f.transition(func(b *models.Booking) bool { return b.ID == id }, from, change)
}

func (f *fakeBookings) TransitionByOrder(_ context.Context, orderRef string, from []models.BookingStatus, change models.BookingChange) (bool, error) {
	return f.transition(func(b *models.Booking) bool {
		return b.OrderReference != nil && *b.OrderReference == orderRef
	}, from, change)
}

func (f *fakeBookings) AttachOrder(_ context.Context, id uuid.UUID, orderRef string, from []models.BookingStatus) (bool, error) {
	return f.transition(func(b *models.Booking) bool {
		return b.ID == id && b.OrderReference == nil
	}, from, models.BookingChange{OrderReference: &orderRef})
}

func (f *fakeBookings) CancelCollisions(_ context.Context, keep *models.Booking, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.rows {
		if b.ID != keep.ID && b.TeacherID == keep.TeacherID && b.SlotKey() == keep.SlotKey() &&
			(b.Status == models.BookingPending || b.Status == models.BookingApproved) {
			r := reason
			b.Status, b.Reason, b.HoldExpiresAt = models.BookingCancelled, &r, nil
			n++
		}
	}
	return n, nil
}

func (f *fakeBookings) expire(match func(*models.Booking) bool, now time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.rows {
		if match(b) && b.Status == models.BookingPending && b.HoldExpiresAt != nil && !b.HoldExpiresAt.After(now) {
			b.Status, b.HoldExpiresAt = models.BookingCancelled, nil
			n++
		}
	}
	return n
}

func (f *fakeBookings) ExpireHolds(_ context.Context, now time.Time) (int64, error) {
	return f.expire(func(*models.Booking) bool { return true }, now), nil
}

func (f *fakeBookings) ExpireSlotHolds(_ context.Context, teacherID uuid.UUID, date, start, end string, now time.Time) (int64, error) {
	key := models.SlotKey(date, start, end)
	return f.expire(func(b *models.Booking) bool { return b.TeacherID == teacherID && b.SlotKey() == key }, now), nil
}

func (f *fakeBookings) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return fmt.Errorf("delete booking: %w", pkgerrors.ErrNotFound)
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeBookings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeWallets applies every mutation under one lock, standing in for the
// single-statement updates of the database.
type fakeWallets struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Wallet
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{rows: map[uuid.UUID]*models.Wallet{}}
}

func (f *fakeWallets) add(teacherID uuid.UUID, balance, earned int64) error {
	if balance <= 0 {
		return fmt.Errorf("credit wallet: %w", pkgerrors.ErrValidation)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[teacherID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), TeacherID: teacherID}
		f.rows[teacherID] = w
	}
	w.Balance += balance
	w.TotalEarned += earned
	return nil
}

func (f *fakeWallets) Credit(_ context.Context, teacherID uuid.UUID, amount int64) error {
	return f.add(teacherID, amount, amount)
}

func (f *fakeWallets) Restore(_ context.Context, teacherID uuid.UUID, amount int64) error {
	return f.add(teacherID, amount, 0)
}

func (f *fakeWallets) Debit(_ context.Context, teacherID uuid.UUID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[teacherID]
	if !ok {
		return fmt.Errorf("debit wallet: %w: no earnings yet", pkgerrors.ErrInsufficientFunds)
	}
	if w.Balance < amount {
		return fmt.Errorf("debit wallet: %w", pkgerrors.ErrInsufficientFunds)
	}
	w.Balance -= amount
	return nil
}

func (f *fakeWallets) AddWithdrawn(_ context.Context, teacherID uuid.UUID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[teacherID]
	if !ok {
		return fmt.Errorf("record withdrawal: %w", pkgerrors.ErrNotFound)
	}
	w.TotalWithdrawn += amount
	return nil
}

func (f *fakeWallets) Get(_ context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[teacherID]
	if !ok {
		return nil, fmt.Errorf("get wallet: %w", pkgerrors.ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWallets) Replace(_ context.Context, w *models.Wallet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *w
	f.rows[w.TeacherID] = &cp
	return nil
}

func (f *fakeWallets) balance(teacherID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.rows[teacherID]; ok {
		return w.Balance
	}
	return 0
}

// fakeTransactions enforces the (booking_id, type) uniqueness of the ledger.
// failCredit fails the next CreateCredited after its uniqueness check, before
// anything is written.
type fakeTransactions struct {
	mu         sync.Mutex
	rows       []models.Transaction
	wallets    *fakeWallets
	failCreate func(*models.Transaction) error
	failCredit error
}

func (f *fakeTransactions) Create(_ context.Context, t *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(t)
}

func (f *fakeTransactions) CreateCredited(_ context.Context, t *models.Transaction, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(t); err != nil {
		return err
	}
	if err := f.failCredit; err != nil {
		f.failCredit = nil
		return err
	}
	if err := f.wallets.add(t.TeacherID, amount, amount); err != nil {
		return err
	}
	f.appendRow(t)
	return nil
}

func (f *fakeTransactions) insert(t *models.Transaction) error {
	if err := f.check(t); err != nil {
		return err
	}
	f.appendRow(t)
	return nil
}

func (f *fakeTransactions) appendRow(t *models.Transaction) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	f.rows = append(f.rows, *t)
}

func (f *fakeTransactions) check(t *models.Transaction) error {
	if t.GrossAmount <= 0 {
		return fmt.Errorf("create transaction: %w", pkgerrors.ErrValidation)
	}
	if f.failCreate != nil {
		if err := f.failCreate(t); err != nil {
			return err
		}
	}
	if t.BookingID != nil {
		for _, existing := range f.rows {
			if existing.BookingID != nil && *existing.BookingID == *t.BookingID && existing.Type == t.Type {
				return fmt.Errorf("create transaction: %w", pkgerrors.ErrAlreadyRecorded)
			}
		}
	}
	return nil
}

func (f *fakeTransactions) Settle(_ context.Context, id uuid.UUID, status models.PaymentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].PaymentStatus == models.PaymentPending {
			f.rows[i].PaymentStatus = status
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTransactions) ListByTeacher(_ context.Context, teacherID uuid.UUID, types ...models.TransactionType) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, t := range f.rows {
		if t.TeacherID != teacherID {
			continue
		}
		if len(types) > 0 {
			match := false
			for _, typ := range types {
				match = match || t.Type == typ
			}
			if !match {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTransactions) ofType(typ models.TransactionType) []models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, t := range f.rows {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

type fakePayouts struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]*models.Payout
	failCreate error
}

func newFakePayouts() *fakePayouts {
	return &fakePayouts{rows: map[uuid.UUID]*models.Payout{}}
}

func (f *fakePayouts) Create(_ context.Context, p *models.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakePayouts) GetByID(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("get payout: %w", pkgerrors.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayouts) Transition(_ context.Context, id uuid.UUID, status models.PayoutStatus, note *string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok || p.Status != models.PayoutPending {
		return false, nil
	}
	p.Status = status
	p.ProcessedAt = &at
	if note != nil {
		n := *note
		p.AdminNote = &n
	}
	return true, nil
}

func (f *fakePayouts) AttachTransaction(_ context.Context, id, transactionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("attach payout transaction: %w", pkgerrors.ErrNotFound)
	}
	p.TransactionID = &transactionID
	return nil
}

func (f *fakePayouts) ListByTeacher(_ context.Context, teacherID uuid.UUID) ([]models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payout
	for _, p := range f.rows {
		if p.TeacherID == teacherID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePayouts) ListByStatus(_ context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payout
	for _, p := range f.rows {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeAvailability struct {
	mu   sync.Mutex
	days map[uuid.UUID][]models.AvailabilityDay
}

func newFakeAvailability() *fakeAvailability {
	return &fakeAvailability{days: map[uuid.UUID][]models.AvailabilityDay{}}
}

func (f *fakeAvailability) GetTemplate(_ context.Context, teacherID uuid.UUID) ([]models.AvailabilityDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AvailabilityDay(nil), f.days[teacherID]...), nil
}

func (f *fakeAvailability) ReplaceTemplate(_ context.Context, teacherID uuid.UUID, days []models.AvailabilityDay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days[teacherID] = append([]models.AvailabilityDay(nil), days...)
	return nil
}

type fakeDirectory struct {
	users   map[uuid.UUID]*models.User
	courses map[uuid.UUID]*models.Course
}

func (f *fakeDirectory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("get user: %w", pkgerrors.ErrNotFound)
}

func (f *fakeDirectory) GetCourse(_ context.Context, id uuid.UUID) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("get course: %w", pkgerrors.ErrNotFound)
}

type recordingSink struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (s *recordingSink) Notify(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *recordingSink) to(userID uuid.UUID) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// fixture wires every service over the fakes with one teacher, one priced
// course and two students.
type fixture struct {
	clock        *fakeClock
	bookings     *fakeBookings
	wallets      *fakeWallets
	transactions *fakeTransactions
	payouts      *fakePayouts
	availability *fakeAvailability
	sink         *recordingSink

	teacherID uuid.UUID
	studentA  uuid.UUID
	studentB  uuid.UUID
	course    *models.Course

	bookingSvc    *BookingService
	ledgerSvc     *LedgerService
	paymentSvc    *PaymentService
	payoutSvc     *PayoutService
	rescheduleSvc *RescheduleService
	slotSvc       *AvailabilityService
}

const testSecret = "webhook-secret"

func newFixture() *fixture {
	f := &fixture{
		clock:        newClock(time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)),
		bookings:     newFakeBookings(),
		wallets:      newFakeWallets(),
		transactions: &fakeTransactions{},
		payouts:      newFakePayouts(),
		availability: newFakeAvailability(),
		sink:         &recordingSink{},
		teacherID:    uuid.New(),
		studentA:     uuid.New(),
		studentB:     uuid.New(),
	}
	f.transactions.wallets = f.wallets
	f.course = &models.Course{ID: uuid.New(), TeacherID: f.teacherID, Title: "Conversational Spanish", Price: 1999, Currency: "INR"}
	dir := &fakeDirectory{
		users: map[uuid.UUID]*models.User{
			f.teacherID: {ID: f.teacherID, FullName: "Teacher T1"},
			f.studentA:  {ID: f.studentA, FullName: "Student A"},
			f.studentB:  {ID: f.studentB, FullName: "Student B"},
		},
		courses: map[uuid.UUID]*models.Course{f.course.ID: f.course},
	}

	f.slotSvc = NewAvailabilityService(f.availability, f.bookings, f.clock.Now, time.UTC)
	f.bookingSvc = NewBookingService(f.bookings, dir, f.sink, nil, BookingConfig{Now: f.clock.Now, Location: time.UTC, Currency: "USD"})
	f.ledgerSvc = NewLedgerService(f.wallets, f.transactions, LedgerConfig{CommissionRate: 0.20})
	f.paymentSvc = NewPaymentService(f.bookingSvc, f.ledgerSvc, payments.OfflineProvider{}, dir, f.sink, VerifierConfig{Secret: testSecret})
	f.payoutSvc = NewPayoutService(f.payouts, f.transactions, f.ledgerSvc, f.sink, f.clock.Now)
	f.rescheduleSvc = NewRescheduleService(f.bookings, dir, nil, f.sink, f.clock.Now)
	return f
}

func (f *fixture) hold(student uuid.UUID, date, start, end string) (*models.Booking, error) {
	return f.bookingSvc.CreateHold(context.Background(), HoldRequest{
		StudentID: student,
		TeacherID: f.teacherID,
		CourseID:  f.course.ID,
		Date:      date,
		Slot:      models.TimeRange{Start: start, End: end},
	})
}
