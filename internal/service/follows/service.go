package follows

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

// Common errors for follow operations.
var (
	ErrCannotFollowSelf = errors.New("cannot follow yourself")
	ErrUserNotFound     = errors.New("user not found")
)

// Service provides the follow graph business logic.
type Service struct {
	store store.Store
}

// New creates a new follow Service.
func New(st store.Store) *Service {
	return &Service{
		store: st,
	}
}

// Follow makes followerID follow followeeID. Following twice is a no-op.
func (s *Service) Follow(ctx context.Context, followerID, followeeID int64) error {
	if followerID == followeeID {
		return ErrCannotFollowSelf
	}
	if err := s.ensureUser(ctx, followeeID); err != nil {
		return err
	}

	if err := s.store.Follow(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

// Unfollow removes the follow edge if present.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	if followerID == followeeID {
		return ErrCannotFollowSelf
	}
	if err := s.store.Unfollow(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

// ListFollowers returns users following userID.
func (s *Service) ListFollowers(ctx context.Context, userID int64) ([]*store.User, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	users, err := s.store.ListFollowers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	return users, nil
}

// ListFollowing returns users userID follows.
func (s *Service) ListFollowing(ctx context.Context, userID int64) ([]*store.User, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	users, err := s.store.ListFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	return users, nil
}

// Contacts returns the union of followers and following, without duplicates or userID itself,
// ordered by username.
func (s *Service) Contacts(ctx context.Context, userID int64) ([]*store.User, error) {
	followers, err := s.store.ListFollowers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	following, err := s.store.ListFollowing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}

	seen := make(map[int64]struct{}, len(followers)+len(following))
	contacts := make([]*store.User, 0, len(followers)+len(following))
	for _, list := range [][]*store.User{followers, following} {
		for _, u := range list {
			if u.ID == userID {
				continue
			}
			if _, ok := seen[u.ID]; ok {
				continue
			}
			seen[u.ID] = struct{}{}
			contacts = append(contacts, u)
		}
	}

	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].Username < contacts[j].Username })
	return contacts, nil
}

func (s *Service) ensureUser(ctx context.Context, userID int64) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}
