package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tutorbase/internal/repositories"
	"tutorbase/internal/utils"
)

const (
	resetTokenBytes = 32
	resetTokenTTL   = time.Hour
	minPasswordLen  = 6
)

// PasswordResetService runs the two-phase reset flow: issue a one-time
// token by email, then exchange it for a new password. RequestReset never
// reveals whether an account exists for the address.
type PasswordResetService interface {
	RequestReset(email string) error
	ResetPassword(token, newPassword string) error
}

type passwordResetService struct {
	users  repositories.UserRepository
	resets repositories.PasswordResetRepository
	emails EmailService
	auth   AuthService
}

func NewPasswordResetService(users repositories.UserRepository, resets repositories.PasswordResetRepository, emails EmailService, auth AuthService) PasswordResetService {
	return &passwordResetService{users: users, resets: resets, emails: emails, auth: auth}
}

func (s *passwordResetService) RequestReset(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("email is required")
	}

	user, err := s.users.GetByEmail(email)
	if err != nil || user == nil {
		// Succeed quietly so callers cannot enumerate accounts.
		log.Printf("[password-reset][request] no account for %q (err=%v)", email, err)
		return nil
	}

	token, err := utils.NewOpaqueToken(resetTokenBytes)
	if err != nil {
		return err
	}
	if _, err := s.resets.Create(user.ID, token, time.Now().Add(resetTokenTTL)); err != nil {
		return err
	}

	if s.emails != nil {
		if err := s.emails.SendPasswordResetEmail(user.Email, token); err != nil {
			log.Printf("[password-reset][request] warning: failed to send email to %s: %v", user.Email, err)
		}
	}
	return nil
}

func (s *passwordResetService) ResetPassword(token, newPassword string) error {
	token = strings.TrimSpace(token)
	newPassword = strings.TrimSpace(newPassword)
	if token == "" || newPassword == "" {
		return fmt.Errorf("token and password are required")
	}
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	reset, err := s.resets.GetByToken(token)
	if err != nil || reset == nil {
		return errors.New("invalid or expired token")
	}
	if reset.UsedAt != nil {
		return errors.New("token already used")
	}
	if time.Now().After(reset.ExpiresAt) {
		return errors.New("token expired")
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(reset.UserID, hash); err != nil {
		return err
	}
	return s.resets.MarkUsed(reset.ID)
}
