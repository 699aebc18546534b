package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserRepositorySearchMatchesUsernameOrEmail(t *testing.T) {
	db := setupChatTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	seedUser(t, db, "alina")
	seedUser(t, db, "bob")

	users, err := repo.Search(ctx, alice.ID, "ALI", 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "alina", users[0].Username)

	users, err = repo.Search(ctx, alice.ID, "example.com", 10)
	require.NoError(t, err)
	require.Len(t, users, 2)

	users, err = repo.Search(ctx, alice.ID, "%", 10)
	require.NoError(t, err)
	require.Empty(t, users, "wildcards are matched literally")
}

func TestUserRepositoryListByIDs(t *testing.T) {
	db := setupChatTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	users, err := repo.ListByIDs(ctx, []string{alice.ID, bob.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, users, 2)

	users, err = repo.ListByIDs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, users)
}
