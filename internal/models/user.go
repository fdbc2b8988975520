package models

import (
	"strings"
	"time"
)

type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	Skills        []string  `json:"skills"`
	Phone         string    `json:"phone,omitempty"`
	AverageRating float64   `json:"averageRating"`
	TotalReviews  int       `json:"totalReviews"`
	Verified      bool      `json:"verified"`
	Banned        bool      `json:"banned"`
	ProfilePic    string    `json:"profilePic,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PublicUser is the subset of a user that other users may see.
type PublicUser struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone,omitempty"`
	ProfilePic    string  `json:"profilePic,omitempty"`
	AverageRating float64 `json:"averageRating"`
	TotalReviews  int     `json:"totalReviews"`
	Verified      bool    `json:"verified"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

func (u *User) IsProvider() bool {
	return u != nil && u.Role == RoleServiceProvider
}

func (u *User) IsMember() bool {
	return u != nil && u.Role == RoleCommunityMember
}

func (u *User) HasSkill(skill string) bool {
	for _, s := range u.Skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Phone:         u.Phone,
		ProfilePic:    u.ProfilePic,
		AverageRating: u.AverageRating,
		TotalReviews:  u.TotalReviews,
		Verified:      u.Verified,
	}
}

// ValidRole reports whether role can be chosen at registration.
func ValidRole(role string) bool {
	return role == RoleServiceProvider || role == RoleCommunityMember
}

// UserFilter narrows user listings. Zero values match everything.
type UserFilter struct {
	Role   string
	Banned *bool
	Skill  string
}
