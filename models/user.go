package models

import (
	"context"
	"errors"
	"strings"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "A"
	UserRoleInspector UserRole = "I"
)

// User is an inspector or administrator account. Username is the natural key:
// unique case-insensitively, normalized to lower case on every write.
type User struct {
	SyncEntity
	Username     string   `gorm:"size:100;not null;index" json:"username" validate:"required"`
	Name         string   `gorm:"size:100;not null" json:"name" validate:"required"`
	Email        string   `gorm:"size:100" json:"email"`
	Phone        string   `gorm:"size:20" json:"phone"`
	PasswordHash string   `gorm:"size:255" json:"password_hash"`
	Role         UserRole `gorm:"size:1;default:I" json:"role"`
	IsActive     *bool    `gorm:"not null" json:"is_active"`
}

type NewUser struct {
	Username string   `json:"username" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Password string   `json:"password" validate:"required,min=8"`
	Role     UserRole `json:"role" validate:"required,oneof=A I"`
}

func (u *User) NaturalKeys() []NaturalKey {
	return []NaturalKey{
		{Column: "username", Value: u.Username},
	}
}

// BeforeSave keeps the not-null is_active column satisfied even for records
// written outside SaveUser, such as rows applied from a remote pull whose
// payload predates the field.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.IsActive == nil {
		u.IsActive = utils.NewTrue()
	}
	return nil
}

// SaveUser normalizes the username and reconciles by it, so the same account
// created on two devices collapses to one row with the original ID.
func SaveUser(ctx context.Context, user *User) (*User, error) {
	user.Username = utils.TrimLower(user.Username)
	if err := utils.ValidateStruct(user); err != nil {
		return nil, err
	}
	if user.IsActive == nil {
		user.IsActive = utils.NewTrue()
	}
	if user.Phone != "" {
		if err := utils.ValidatePhoneNumber(user.Phone, config.PhoneRegion()); err != nil {
			return nil, err
		}
	}
	if err := reconcileSave[User](ctx, user, user.NaturalKeys()); err != nil {
		return nil, err
	}
	return user, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     input.Username,
		Name:         input.Name,
		Email:        strings.TrimSpace(input.Email),
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: string(hashed),
		Role:         input.Role,
		IsActive:     utils.NewTrue(),
	}
	return SaveUser(ctx, user)
}

func GetUser(ctx context.Context, id string) (*User, error) {
	return GetSynced[User](ctx, id)
}

// GetUserByUsername looks up a non-deleted account case-insensitively.
// (may return ErrorRecordNotFound)
func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var result User
	err := db.WithContext(ctx).
		Where("username = ? AND is_deleted = ?", utils.TrimLower(username), false).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// AuthenticateUser verifies a login against the on-device store, so field
// inspectors can sign in with no connectivity.
func AuthenticateUser(ctx context.Context, username string, password string) (*User, error) {
	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.ErrorInvalidLogin
		}
		return nil, err
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, utils.ErrorInvalidLogin
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, utils.ErrorInvalidLogin
	}
	return user, nil
}

func DeleteUser(ctx context.Context, id string) error {
	return SoftDelete[User, *User](ctx, id)
}
