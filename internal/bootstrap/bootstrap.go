package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrparking/internal/lifecycle"
	userserrors "qrparking/internal/users/errors"
	"qrparking/pkg/config"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"

	"golang.org/x/crypto/bcrypt"
)

const defaultFloor = 1

type SlotSeeder interface {
	InsertMissing(ctx context.Context, slots []*model.ParkingSlot) (int64, error)
}

type AdminStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
}

// Bootstrapper makes a fresh database usable: the configured slot grid and
// the default administrator. Every step is idempotent.
type Bootstrapper struct {
	slots SlotSeeder
	users AdminStore
	cfg   *config.Config
	now   func() time.Time
	log   *logger.Logger
}

func New(slots SlotSeeder, users AdminStore, cfg *config.Config, now func() time.Time) *Bootstrapper {
	return &Bootstrapper{
		slots: slots,
		users: users,
		cfg:   cfg,
		now:   now,
		log:   cfg.Log.With("component", "bootstrap"),
	}
}

func (b *Bootstrapper) Run(ctx context.Context) error {
	if err := b.SeedSlots(ctx); err != nil {
		return err
	}
	return b.SeedAdmin(ctx)
}

// SeedSlots inserts every slot of the grid that does not exist yet. Slots
// already present keep their state.
func (b *Bootstrapper) SeedSlots(ctx context.Context) error {
	slots := Grid(b.cfg.SlotSections, b.cfg.SlotsPerSection, b.now())

	created, err := b.slots.InsertMissing(ctx, slots)
	if err != nil {
		return fmt.Errorf("failed to seed parking slots: %w", err)
	}
	b.log.Info("Parking slots ready", "total", len(slots), "created", created)
	return nil
}

// SeedAdmin creates the default administrator when no user holds the
// configured email. Without a configured password nothing is created.
func (b *Bootstrapper) SeedAdmin(ctx context.Context) error {
	email := strings.ToLower(strings.TrimSpace(b.cfg.AdminEmail))

	_, err := b.users.FindByEmail(ctx, email)
	if err == nil {
		b.log.Debug("Admin user already exists", "email", email)
		return nil
	}
	if !errors.Is(err, userserrors.ErrNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	if b.cfg.AdminPassword == "" {
		b.log.Warn("No admin user exists and ADMIN_PASSWORD is not set; skipping admin creation", "email", email)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(b.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &model.User{
		Name:         b.cfg.AdminName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		CreatedAt:    b.now(),
	}
	if err := b.users.Create(ctx, admin); err != nil {
		if errors.Is(err, userserrors.ErrDuplicateEmail) {
			// another instance won the race
			return nil
		}
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	b.log.Info("Admin user created", "email", email, "id", admin.ID)
	return nil
}

// Grid returns the available slots of the layout, named like A-01.
func Grid(sections []string, perSection int, now time.Time) []*model.ParkingSlot {
	slots := make([]*model.ParkingSlot, 0, len(sections)*perSection)
	for _, section := range sections {
		for i := 1; i <= perSection; i++ {
			id := fmt.Sprintf("%s-%02d", section, i)
			slots = append(slots, &model.ParkingSlot{
				ID:        id,
				Status:    model.SlotAvailable,
				Floor:     defaultFloor,
				QRCode:    lifecycle.StaticPayload(id),
				UpdatedAt: now,
			})
		}
	}
	return slots
}
