// Package databasetest holds the behaviour every database backend must share.
package databasetest

import (
	"context"
	"testing"
	"time"

	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func addTree(t *testing.T, db database.Database, name string, created time.Time) tree.TreeID {
	t.Helper()
	id, err := db.AddTree(context.Background(), &tree.Tree{
		Name:     name,
		Species:  "Quercus robur",
		Age:      intPtr(150),
		Location: "Main Quad",
		Created:  created,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

// Run exercises db, which must be open and migrated.
func Run(t *testing.T, newDB func(t *testing.T) database.Database) {
	ctx := context.Background()

	t.Run("tree round trip", func(t *testing.T) {
		db := newDB(t)
		lat, lon := 40.7128, -74.006
		in := &tree.Tree{
			Name:      "Ancient Oak",
			Species:   "Quercus robur",
			Age:       intPtr(150),
			Location:  "Main Quad",
			Latitude:  &lat,
			Longitude: &lon,
		}
		id, err := db.AddTree(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, id, in.ID)

		got, err := db.GetTree(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Ancient Oak", got.Name)
		require.NotNil(t, got.Age)
		assert.Equal(t, 150, *got.Age)
		assert.Equal(t, "", got.PhotoURL)
		require.True(t, got.HasLocation())
		assert.InDelta(t, lat, *got.Latitude, 1e-9)
		assert.False(t, got.Created.IsZero())
	})

	t.Run("missing tree", func(t *testing.T) {
		db := newDB(t)
		_, err := db.GetTree(ctx, "nope")
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.ErrorIs(t, db.DeleteTree(ctx, "nope"), database.ErrNotFound)
	})

	t.Run("trees newest first with paging", func(t *testing.T) {
		db := newDB(t)
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		addTree(t, db, "second", base.Add(time.Hour))
		addTree(t, db, "first", base)
		addTree(t, db, "third", base.Add(2*time.Hour))

		total, err := db.GetTotalTrees(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		page, err := db.GetTrees(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, *page, 2)
		assert.Equal(t, "third", (*page)[0].Name)
		assert.Equal(t, "second", (*page)[1].Name)

		page, err = db.GetTrees(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, *page, 1)
		assert.Equal(t, "first", (*page)[0].Name)
	})

	t.Run("like count equals like rows", func(t *testing.T) {
		db := newDB(t)
		id := addTree(t, db, "t1", time.Time{})

		for _, d := range []tree.DeviceID{"dev-A", "dev-B", "dev-A"} {
			require.NoError(t, db.AddLike(ctx, id, d))
		}
		count, err := db.CountLikes(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "duplicate like must not add a row")

		liked, err := db.HasLike(ctx, id, "dev-A")
		require.NoError(t, err)
		assert.True(t, liked)

		require.NoError(t, db.DeleteLike(ctx, id, "dev-A"))
		liked, err = db.HasLike(ctx, id, "dev-A")
		require.NoError(t, err)
		assert.False(t, liked)
		count, err = db.CountLikes(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("comments newest first for any insertion order", func(t *testing.T) {
		db := newDB(t)
		id := addTree(t, db, "t1", time.Time{})
		other := addTree(t, db, "t2", time.Time{})
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for _, offset := range []int{2, 0, 3, 1} {
			_, err := db.AddComment(ctx, &tree.Comment{
				TreeID:     id,
				AuthorName: "Ann",
				Body:       "memory",
				Created:    base.Add(time.Duration(offset) * time.Minute),
			})
			require.NoError(t, err)
		}
		_, err := db.AddComment(ctx, &tree.Comment{TreeID: other, AuthorName: "Bob", Body: "elsewhere"})
		require.NoError(t, err)

		cl, err := db.GetComments(ctx, id)
		require.NoError(t, err)
		require.Len(t, *cl, 4)
		for i := 1; i < len(*cl); i++ {
			assert.True(t, (*cl)[i-1].Created.After((*cl)[i].Created), "comment %d out of order", i)
		}
		assert.NotEmpty(t, (*cl)[0].ID)
	})

	t.Run("delete tree removes likes and comments", func(t *testing.T) {
		db := newDB(t)
		id := addTree(t, db, "t1", time.Time{})
		require.NoError(t, db.AddLike(ctx, id, "dev-A"))
		_, err := db.AddComment(ctx, &tree.Comment{TreeID: id, AuthorName: "Ann", Body: "hi"})
		require.NoError(t, err)

		require.NoError(t, db.DeleteTree(ctx, id))

		count, err := db.CountLikes(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, count)
		cl, err := db.GetComments(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, *cl)
	})

	t.Run("admins", func(t *testing.T) {
		db := newDB(t)
		require.NoError(t, db.AddAdmin(ctx, &tree.Admin{Email: "admin@college.edu", PasswordHash: "x"}))
		assert.ErrorIs(t, db.AddAdmin(ctx, &tree.Admin{Email: "admin@college.edu", PasswordHash: "y"}), database.ErrDuplicate)

		a, err := db.GetAdmin(ctx, "admin@college.edu")
		require.NoError(t, err)
		assert.Equal(t, "x", a.PasswordHash)

		_, err = db.GetAdmin(ctx, "nobody@college.edu")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}
