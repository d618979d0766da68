package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"qrparking/pkg/auth"
	"qrparking/pkg/model"
)

const tokenTTL = time.Hour

type UserBuilder struct {
	user model.User
}

func NewUserBuilder() *UserBuilder {
	id := uuid.NewString()
	return &UserBuilder{
		user: model.User{
			ID:            id,
			Name:          "Test Driver",
			Email:         "driver-" + id[:8] + "@example.com",
			PasswordHash:  "not-a-real-hash",
			Role:          model.RoleUser,
			VehicleNumber: "KA01AB1234",
			CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
		},
	}
}

func (b *UserBuilder) WithName(name string) *UserBuilder {
	b.user.Name = name
	return b
}

func (b *UserBuilder) WithRole(role model.Role) *UserBuilder {
	b.user.Role = role
	return b
}

func (b *UserBuilder) WithVehicle(vehicle string) *UserBuilder {
	b.user.VehicleNumber = vehicle
	return b
}

func (b *UserBuilder) Blocked() *UserBuilder {
	b.user.IsBlocked = true
	return b
}

func (b *UserBuilder) Build() *model.User {
	u := b.user
	return &u
}

// TokenFor signs a bearer token for user with the service secret.
func (e *TestEnv) TokenFor(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := auth.NewVerifier(e.JWTSecret).Issue(auth.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, tokenTTL)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}
