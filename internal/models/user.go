package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// User represents an account. Email is the login identifier.
type User struct {
	ID           string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string         `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Username     string         `json:"username" gorm:"uniqueIndex;type:varchar(100);not null"`
	Password     string         `json:"-" gorm:"type:varchar(255)"` // hash only
	IsActive     bool           `json:"is_active"`
	IsStaff      bool           `json:"is_staff"`
	IsSuperuser  bool           `json:"is_superuser"`
	ProfileImage string         `json:"profile_image,omitempty" gorm:"type:varchar(255)"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// userModels maps AUTH_USER_MODEL values to constructors for the account
// record type. It is consulted once at startup.
var userModels = map[string]func() any{
	"models.User": func() any { return &User{} },
}

// ResolveUserModel returns a zero value of the account record type named by
// name, suitable for gorm.AutoMigrate.
func ResolveUserModel(name string) (any, error) {
	newModel, ok := userModels[name]
	if !ok {
		return nil, fmt.Errorf("unknown user model %q", name)
	}
	return newModel(), nil
}
