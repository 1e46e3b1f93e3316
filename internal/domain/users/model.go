package users

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleDoctor    Role = "doctor"
	RoleNurse     Role = "nurse"
	RoleClient    Role = "client"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrAlreadyRegistered = errors.New("phone or chat already registered")
	ErrInvalidPhone      = errors.New("invalid phone")
	ErrInvalidRole       = errors.New("invalid role")
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleModerator, RoleDoctor, RoleNurse, RoleClient:
		return r, nil
	}
	return "", ErrInvalidRole
}

// CanAnnounce: рассылки доступны только администраторам и модераторам.
func (r Role) CanAnnounce() bool { return r == RoleAdmin || r == RoleModerator }

func (r Role) IsStaff() bool { return r != RoleClient }

type User struct {
	ID           int64
	Phone        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Registration: всё, что бот собрал за онбординг.
type Registration struct {
	Phone        string
	FirstName    string
	LastName     string
	PasswordHash string
	ChatID       int64
	Language     string
}

var phoneRe = regexp.MustCompile(`^\+[0-9]{9,15}$`)

// NormalizePhone приводит номер к виду +XXXXXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if !phoneRe.MatchString(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}
