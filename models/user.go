package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RoleImageAdmin = "image-admin"
	RoleLabeler    = "labeler"

	SubjectCampaign = "campaign"
)

type User struct {
	gorm.Model
	Email     string  `json:"email" gorm:"size:200;not null;uniqueIndex"`
	APIKey    *string `json:"-" gorm:"column:api_key;size:100;uniqueIndex"`
	APISecret []byte  `json:"-" gorm:"column:api_secret"`
	Enabled   bool    `json:"enabled" gorm:"not null;default:true"`
	Roles     []Role  `json:"-" gorm:"foreignKey:UserID"`
}

// Role is a stored grant. A role without subject is global, a role with both subject
// columns set is scoped to that subject.
type Role struct {
	ID          uint    `gorm:"primaryKey"`
	UserID      uint    `gorm:"not null;index"`
	Name        string  `gorm:"column:role;size:32;not null"`
	SubjectType *string `gorm:"size:128"`
	SubjectID   *uint
}

// Grant is either a GlobalGrant or a ScopedGrant.
type Grant interface {
	RoleName() string
}

type GlobalGrant struct {
	Name string
}

type ScopedGrant struct {
	Name        string
	SubjectType string
	SubjectID   uint
}

func (g GlobalGrant) RoleName() string { return g.Name }
func (g ScopedGrant) RoleName() string { return g.Name }

// Grant Convert the stored row to its grant. Rows with only one of the subject columns set
// grant nothing.
func (r Role) Grant() Grant {
	switch {
	case r.SubjectType == nil && r.SubjectID == nil:
		return GlobalGrant{Name: r.Name}
	case r.SubjectType != nil && r.SubjectID != nil:
		return ScopedGrant{Name: r.Name, SubjectType: *r.SubjectType, SubjectID: *r.SubjectID}
	default:
		return nil
	}
}

// NewRole Build the stored row for a grant
func NewRole(userID uint, grant Grant) Role {
	role := Role{UserID: userID, Name: grant.RoleName()}
	if scoped, ok := grant.(ScopedGrant); ok {
		subjectType, subjectID := scoped.SubjectType, scoped.SubjectID
		role.SubjectType = &subjectType
		role.SubjectID = &subjectID
	}
	return role
}

// CheckSecret Compare a plain text secret against the stored hash
func (u *User) CheckSecret(secret string) bool {
	if len(u.APISecret) == 0 || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.APISecret, []byte(secret)) == nil
}

// GenerateAPIKey Create a new key and secret for the user, storing the secret hashed.
// This is the only time the plain text secret is known.
func (u *User) GenerateAPIKey(tx *gorm.DB) (string, string, error) {
	key, err := randomHex(16)
	if err != nil {
		return "", "", err
	}
	secret, err := randomHex(16)
	if err != nil {
		return "", "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash secret: %w", err)
	}

	if err := tx.Model(u).Updates(map[string]interface{}{"api_key": key, "api_secret": hashed}).Error; err != nil {
		return "", "", fmt.Errorf("failed to store api key: %w", err)
	}
	u.APIKey = &key
	u.APISecret = hashed

	log.Info(fmt.Sprintf("Generated new API key for %s", u.Email))
	return key, secret, nil
}

// FindOrCreateUser Find a user by email, creating it when it does not exist yet
func FindOrCreateUser(tx *gorm.DB, email string) (*User, error) {
	if email == "" {
		return nil, errors.New("email is required")
	}
	var user User
	err := tx.Preload("Roles").Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user = User{Email: email, Enabled: true}
	if err := tx.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Info(fmt.Sprintf("Created user %s", email))
	return &user, nil
}

// GrantRole Store a grant for the user, unless the user already holds it
func GrantRole(tx *gorm.DB, user *User, grant Grant) error {
	for _, r := range user.Roles {
		if r.Grant() == grant {
			return nil
		}
	}
	role := NewRole(user.ID, grant)
	if err := tx.Create(&role).Error; err != nil {
		return fmt.Errorf("failed to grant %s: %w", grant.RoleName(), err)
	}
	user.Roles = append(user.Roles, role)
	log.Info(fmt.Sprintf("Added %s role to %s", grant.RoleName(), user.Email))
	return nil
}

// Authenticate Resolve the user owning the key, when the secret matches and the user is enabled.
// Returns nil without error for any credential that does not resolve.
func Authenticate(db *gorm.DB, key string, secret string) (*User, error) {
	if key == "" || secret == "" {
		return nil, nil
	}
	var user User
	err := db.Preload("Roles").Where("api_key = ?", key).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if !user.Enabled || !user.CheckSecret(secret) {
		return nil, nil
	}
	return &user, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
