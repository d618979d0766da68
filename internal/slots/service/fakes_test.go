package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"qrparking/internal/events"
	historyerrors "qrparking/internal/history/errors"
	historyservice "qrparking/internal/history/service"
	"qrparking/internal/lifecycle"
	slotserrors "qrparking/internal/slots/errors"
	"qrparking/internal/slots/validator"
	userserrors "qrparking/internal/users/errors"
	usersrepo "qrparking/internal/users/repository"
	"qrparking/pkg/clock"
	"qrparking/pkg/config"
	mongotx "qrparking/pkg/db/mongo"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"
)

// ────────────────────────────────────────────────
// In-memory slot store with an atomic conditional update
// ────────────────────────────────────────────────

type memSlotStore struct {
	mu    sync.Mutex
	slots map[string]*model.ParkingSlot
}

func newMemSlotStore(ids ...string) *memSlotStore {
	s := &memSlotStore{slots: make(map[string]*model.ParkingSlot)}
	for _, id := range ids {
		s.slots[id] = &model.ParkingSlot{
			ID:     id,
			Status: model.SlotAvailable,
			Floor:  1,
			QRCode: lifecycle.StaticPayload(id),
		}
	}
	return s
}

func cloneSlot(doc *model.ParkingSlot) *model.ParkingSlot {
	c := *doc
	c.VehicleNumber = cloneStr(doc.VehicleNumber)
	c.BookedBy = cloneStr(doc.BookedBy)
	c.ReservationQRCode = cloneStr(doc.ReservationQRCode)
	c.OccupiedQRCode = cloneStr(doc.OccupiedQRCode)
	c.ReservationTime = cloneTime(doc.ReservationTime)
	c.ArrivalTime = cloneTime(doc.ArrivalTime)
	c.ParkedTime = cloneTime(doc.ParkedTime)
	c.LeavingRequestTime = cloneTime(doc.LeavingRequestTime)
	c.PaymentTime = cloneTime(doc.PaymentTime)
	if doc.OccupiedRequestStatus != nil {
		v := *doc.OccupiedRequestStatus
		c.OccupiedRequestStatus = &v
	}
	if doc.LeavingRequestStatus != nil {
		v := *doc.LeavingRequestStatus
		c.LeavingRequestStatus = &v
	}
	if doc.PaymentStatus != nil {
		v := *doc.PaymentStatus
		c.PaymentStatus = &v
	}
	return &c
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (s *memSlotStore) get(id string) *model.ParkingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSlot(s.slots[id])
}

func (s *memSlotStore) put(doc *model.ParkingSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[doc.ID] = cloneSlot(doc)
}

func (s *memSlotStore) FindByID(ctx context.Context, id string) (*model.ParkingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return cloneSlot(doc), nil
}

func (s *memSlotStore) FindActiveByUser(ctx context.Context, userID string) (*model.ParkingSlot, error) {
	found := s.filter(func(d *model.ParkingSlot) bool {
		return d.Status.Active() && d.BookedBy != nil && *d.BookedBy == userID
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: no active slot for user %s", slotserrors.ErrNotFound, userID)
	}
	return found[0], nil
}

func (s *memSlotStore) FindAll(ctx context.Context) ([]*model.ParkingSlot, error) {
	return s.filter(func(*model.ParkingSlot) bool { return true }), nil
}

func (s *memSlotStore) FindVisibleTo(ctx context.Context, userID string) ([]*model.ParkingSlot, error) {
	return s.filter(func(d *model.ParkingSlot) bool {
		return d.Status == model.SlotAvailable ||
			(d.Status == model.SlotReserved && d.BookedBy != nil && *d.BookedBy == userID)
	}), nil
}

func (s *memSlotStore) FindPendingRequests(ctx context.Context, occupied, leaving bool) ([]*model.ParkingSlot, error) {
	return s.filter(func(d *model.ParkingSlot) bool {
		if occupied && d.Status == model.SlotReserved && d.OccupiedRequestStatus != nil && *d.OccupiedRequestStatus == model.RequestPending {
			return true
		}
		return leaving && d.Status == model.SlotLeaving
	}), nil
}

func (s *memSlotStore) FindReservedBefore(ctx context.Context, cutoff time.Time) ([]*model.ParkingSlot, error) {
	return s.filter(func(d *model.ParkingSlot) bool {
		pending := d.OccupiedRequestStatus != nil && *d.OccupiedRequestStatus == model.RequestPending
		return d.Status == model.SlotReserved && d.ReservationTime.Before(cutoff) && !pending
	}), nil
}

func (s *memSlotStore) CountByStatus(ctx context.Context) (map[model.SlotStatus]int64, error) {
	counts := make(map[model.SlotStatus]int64)
	for _, d := range s.filter(func(*model.ParkingSlot) bool { return true }) {
		counts[d.Status]++
	}
	return counts, nil
}

func (s *memSlotStore) CountPendingRequests(ctx context.Context) (int64, int64, error) {
	var occupied, leaving int64
	for _, d := range s.filter(func(*model.ParkingSlot) bool { return true }) {
		if d.Status == model.SlotReserved && d.OccupiedRequestStatus != nil && *d.OccupiedRequestStatus == model.RequestPending {
			occupied++
		}
		if d.Status == model.SlotLeaving && d.PaymentStatus != nil && *d.PaymentStatus == model.PaymentPaid {
			leaving++
		}
	}
	return occupied, leaving, nil
}

func (s *memSlotStore) ConditionalUpdate(ctx context.Context, id string, expectStatus model.SlotStatus, expectVersion int64, next *model.ParkingSlot) (*model.ParkingSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	if current.Status != expectStatus || current.Version != expectVersion {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrConflict, id)
	}
	if next.BookedBy != nil && next.Status.Active() {
		for otherID, other := range s.slots {
			if otherID != id && other.Status.Active() && other.BookedBy != nil && *other.BookedBy == *next.BookedBy {
				return nil, fmt.Errorf("%w: %s", slotserrors.ErrHolderTaken, id)
			}
		}
	}

	stored := cloneSlot(next)
	stored.Version = expectVersion + 1
	s.slots[id] = stored
	return cloneSlot(stored), nil
}

func (s *memSlotStore) ResetPendingOccupiedRequests(ctx context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.slots {
		if d.Status == model.SlotReserved && d.OccupiedRequestStatus != nil && *d.OccupiedRequestStatus == model.RequestPending {
			d.OccupiedRequestStatus = nil
			d.UpdatedAt = at
			d.Version++
			n++
		}
	}
	return n, nil
}

func (s *memSlotStore) InsertMissing(ctx context.Context, slots []*model.ParkingSlot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range slots {
		if _, ok := s.slots[d.ID]; !ok {
			s.slots[d.ID] = cloneSlot(d)
			n++
		}
	}
	return n, nil
}

// ExecuteTransaction restores every slot when fn fails.
func (s *memSlotStore) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	s.mu.Lock()
	snapshot := make(map[string]*model.ParkingSlot, len(s.slots))
	for id, d := range s.slots {
		snapshot[id] = cloneSlot(d)
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.slots = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memSlotStore) filter(keep func(*model.ParkingSlot) bool) []*model.ParkingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.ParkingSlot{}
	for _, d := range s.slots {
		if keep(d) {
			out = append(out, cloneSlot(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ────────────────────────────────────────────────
// Users, history, renderer and event fakes
// ────────────────────────────────────────────────

type fakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUserRepository {
	r := &fakeUserRepository{users: make(map[string]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, userserrors.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *fakeUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, userserrors.ErrNotFound
}

func (r *fakeUserRepository) FindAll(ctx context.Context, filter usersrepo.UserFilter) ([]*model.User, error) {
	return nil, nil
}

func (r *fakeUserRepository) Count(ctx context.Context, filter usersrepo.UserFilter) (int64, error) {
	return 0, nil
}

func (r *fakeUserRepository) CountUsers(ctx context.Context) (usersrepo.UserCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts usersrepo.UserCounts
	for _, u := range r.users {
		if u.Role != model.RoleUser {
			continue
		}
		counts.Total++
		if u.IsBlocked {
			counts.Blocked++
		}
	}
	return counts, nil
}

func (r *fakeUserRepository) SetBlocked(ctx context.Context, id string, blocked bool, by string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return userserrors.ErrNotFound
	}
	u.IsBlocked = blocked
	return nil
}

type memHistoryRepository struct {
	mu        sync.Mutex
	records   []*model.CompletedParking
	appendErr error
}

func (m *memHistoryRepository) Append(ctx context.Context, record *model.CompletedParking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, existing := range m.records {
		if existing.SessionKey == record.SessionKey {
			return fmt.Errorf("%w: %s", historyerrors.ErrAlreadyArchived, record.SessionKey)
		}
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memHistoryRepository) FindBySessionKey(ctx context.Context, key string) (*model.CompletedParking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.SessionKey == key {
			return r, nil
		}
	}
	return nil, historyerrors.ErrNotFound
}

func (m *memHistoryRepository) FindAll(ctx context.Context, filter model.CompletedParkingFilter) ([]*model.CompletedParking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.CompletedParking(nil), m.records...), nil
}

func (m *memHistoryRepository) Count(ctx context.Context, filter model.CompletedParkingFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

type fakeRenderer struct {
	err      error
	rendered []string
	mu       sync.Mutex
}

func (r *fakeRenderer) Render(payload string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.mu.Lock()
	r.rendered = append(r.rendered, payload)
	r.mu.Unlock()
	return "data:image/png;base64,ZmFrZQ==", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.LifecycleEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// ────────────────────────────────────────────────
// Fixture
// ────────────────────────────────────────────────

var startTime = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      SlotService
	store    *memSlotStore
	users    *fakeUserRepository
	history  *memHistoryRepository
	renderer *fakeRenderer
	events   *recordingPublisher
	clock    *clock.Manual
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{Log: logger.Discard()}
	f := &fixture{
		store: newMemSlotStore("A-01", "A-02", "B-01"),
		users: newFakeUsers(
			&model.User{ID: "user-1", Name: "Asha", Email: "asha@parking.com", Role: model.RoleUser, VehicleNumber: "KA01AB1234"},
			&model.User{ID: "user-2", Name: "Ravi", Email: "ravi@parking.com", Role: model.RoleUser},
			&model.User{ID: "user-blocked", Name: "Blocked", Email: "blocked@parking.com", Role: model.RoleUser, IsBlocked: true},
			&model.User{ID: "admin-1", Name: "Admin", Email: "admin@parking.com", Role: model.RoleAdmin},
		),
		history:  &memHistoryRepository{},
		renderer: &fakeRenderer{},
		events:   &recordingPublisher{},
		clock:    clock.NewManual(startTime),
	}
	f.svc = NewSlotService(
		f.store,
		f.users,
		historyservice.NewHistoryService(f.history, cfg),
		lifecycle.NewEngine(time.Hour, 50),
		f.renderer,
		f.events,
		validator.NewSlotValidator(),
		f.clock,
		cfg,
	)
	return f
}

func (f *fixture) reserve(t *testing.T, userID, slotID string) *SessionQR {
	t.Helper()
	res, err := f.svc.Reserve(context.Background(), userID, &model.ReserveRequest{SlotID: slotID, VehicleNumber: "KA01AB1234"})
	if err != nil {
		t.Fatalf("Reserve(%s, %s) error = %v", userID, slotID, err)
	}
	return res
}

// park drives userID's reservation on slotID to occupied.
func (f *fixture) park(t *testing.T, userID, slotID string) {
	t.Helper()
	ctx := context.Background()
	f.reserve(t, userID, slotID)
	if _, err := f.svc.RequestOccupied(ctx, userID); err != nil {
		t.Fatalf("RequestOccupied() error = %v", err)
	}
	if _, err := f.svc.Decide(ctx, "admin-1", slotID, lifecycle.RequestOccupied, lifecycle.Approve); err != nil {
		t.Fatalf("approve occupied error = %v", err)
	}
}
