// Package users keeps user records in step with the auth provider and serves
// the leaderboard.
package users

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	dbt "gogreen/db/db"
	"gogreen/identity"
	"gogreen/libs/diff"
	"gogreen/libs/verify"
)

var (
	ErrInvalidIdentity = errors.New("identity has no external id")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// ProfileInput holds the fields a client may set on its own record. Nil
// fields are left as they are. The score is not among them: it only moves
// through the ledger.
type ProfileInput struct {
	Username        *string `json:"username" validate:"omitempty,min=1,max=64,safe_text"`
	DisplayName     *string `json:"display_name" validate:"omitempty,max=128,safe_text"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url,max=2048"`
}

type SyncResult struct {
	User    *dbt.UserAccount `json:"user"`
	Created bool             `json:"created"`
	Changes []diff.Change    `json:"changes"`
}

type Service struct {
	store    dbt.UserDBWrapper
	deriver  identity.Deriver
	validate *validator.Validate
	timeout  time.Duration
}

func NewService(store dbt.UserDBWrapper, deriver identity.Deriver, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := verify.RegisterSafeText(v); err != nil {
		log.Fatalf("Failed to register %s validation: %v", verify.SafeTextTag, err)
	}
	return &Service{
		store:    store,
		deriver:  deriver,
		validate: v,
		timeout:  timeout,
	}
}

// UserID returns the internal id of an external identity.
func (s *Service) UserID(id identity.Identity) uuid.UUID {
	return s.deriver.Derive(id.ExternalID)
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*dbt.UserAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.GetUser(ctx, userID)
}

// Sync upserts the caller's record from its identity claims and the optional
// profile input, which wins over the claims. A new record starts at score 0;
// an existing score is never written.
func (s *Service) Sync(ctx context.Context, id identity.Identity, in ProfileInput) (*SyncResult, error) {
	if strings.TrimSpace(id.ExternalID) == "" {
		return nil, ErrInvalidIdentity
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	userID := s.UserID(id)
	patch := buildPatch(userID, id, in)

	readCtx, cancel := context.WithTimeout(ctx, s.timeout)
	before, err := s.store.GetUser(readCtx, userID)
	cancel()
	created := false
	switch {
	case errors.Is(err, dbt.ErrUserNotFound):
		created = true
		before = &dbt.UserAccount{ID: userID}
	case err != nil:
		return nil, fmt.Errorf("failed to read user %s: %w", userID, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	after, err := s.store.UpsertUser(writeCtx, patch)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", userID, err)
	}

	changes, err := diff.Changes(*before, *after)
	if err != nil {
		// the record is written, only the report is lost
		log.Printf("Failed to diff user %s: %v", userID, err)
		changes = nil
	}
	if created {
		log.Printf("Created user %s for %s", userID, id.ExternalID)
	} else if len(changes) > 0 {
		log.Printf("Updated user %s: %v", userID, diff.Fields(changes))
	}

	return &SyncResult{User: after, Created: created, Changes: changes}, nil
}

func buildPatch(userID uuid.UUID, id identity.Identity, in ProfileInput) dbt.UserPatch {
	patch := dbt.UserPatch{ID: userID}
	patch.Username = pick(in.Username, id.Username)
	patch.DisplayName = pick(in.DisplayName, id.DisplayName)
	patch.ProfileImageURL = pick(in.ProfileImageURL, id.AvatarURL)
	return patch
}

// pick prefers the explicit value and otherwise uses a non-empty claim.
func pick(explicit *string, claim string) *string {
	if explicit != nil {
		v := strings.TrimSpace(*explicit)
		return &v
	}
	if claim = strings.TrimSpace(claim); claim != "" {
		return &claim
	}
	return nil
}
