// Package storetest holds the behaviour every store.Store backend must
// share, plus helpers for tests in other packages.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postboard/internal/model"
	"postboard/internal/store"
	"postboard/internal/store/sqlstore"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// NewSQLite returns an empty in-memory SQLite store that is closed when
// the test finishes.
func NewSQLite(t *testing.T) store.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := sqlstore.OpenSQLite(context.Background(), fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close(context.Background()) })

	return st
}

func Run(t *testing.T, newStore Factory) {
	t.Run("UserLifecycle", func(t *testing.T) { testUserLifecycle(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("UnknownEmail", func(t *testing.T) { testUnknownEmail(t, newStore(t)) })
	t.Run("PostRoundTrip", func(t *testing.T) { testPostRoundTrip(t, newStore(t)) })
	t.Run("ListWindow", func(t *testing.T) { testListWindow(t, newStore(t)) })
	t.Run("UpdateKeepsCreator", func(t *testing.T) { testUpdateKeepsCreator(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("MissingPost", func(t *testing.T) { testMissingPost(t, newStore(t)) })
}

func testUserLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()

	u, err := st.CreateUser(ctx, "ada@example.com", "hash")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	got, err := st.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func testDuplicateEmail(t *testing.T, st store.Store) {
	ctx := context.Background()

	_, err := st.CreateUser(ctx, "ada@example.com", "hash-1")
	require.NoError(t, err)

	_, err = st.CreateUser(ctx, "ada@example.com", "hash-2")
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := st.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.PasswordHash)
}

func testUnknownEmail(t *testing.T, st store.Store) {
	_, err := st.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPostRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	owner := newUser(t, st, "ada@example.com")

	in := model.Post{
		Title:     "Hello",
		Content:   "First post",
		ImagePath: "http://localhost/images/a.png",
		Creator:   owner.ID,
	}

	created, err := st.CreatePost(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := st.GetPost(ctx, created.ID)
	require.NoError(t, err)

	in.ID = created.ID
	assert.Equal(t, in, got)
}

func testListWindow(t *testing.T, st store.Store) {
	ctx := context.Background()
	owner := newUser(t, st, "ada@example.com")

	var ids []string
	for i := 0; i < 5; i++ {
		p, err := st.CreatePost(ctx, model.Post{
			Title:     fmt.Sprintf("post %d", i),
			Content:   "content",
			ImagePath: "img",
			Creator:   owner.ID,
		})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	n, err := st.CountPosts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	all, err := st.ListPosts(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ids, postIDs(all))

	page, err := st.ListPosts(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[2:4], postIDs(page))

	tail, err := st.ListPosts(ctx, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[4:], postIDs(tail))

	rest, err := st.ListPosts(ctx, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[3:], postIDs(rest))
}

func testUpdateKeepsCreator(t *testing.T, st store.Store) {
	ctx := context.Background()
	owner := newUser(t, st, "ada@example.com")
	other := newUser(t, st, "bob@example.com")

	p, err := st.CreatePost(ctx, model.Post{Title: "a", Content: "b", ImagePath: "c", Creator: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, p.Creator)

	err = st.UpdatePost(ctx, model.Post{ID: p.ID, Title: "a2", Content: "b2", ImagePath: "c2", Creator: other.ID})
	require.NoError(t, err)

	got, err := st.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Post{ID: p.ID, Title: "a2", Content: "b2", ImagePath: "c2", Creator: owner.ID}, got)
}

func testDelete(t *testing.T, st store.Store) {
	ctx := context.Background()
	owner := newUser(t, st, "ada@example.com")

	p, err := st.CreatePost(ctx, model.Post{Title: "a", Content: "b", ImagePath: "c", Creator: owner.ID})
	require.NoError(t, err)

	require.NoError(t, st.DeletePost(ctx, p.ID))

	_, err = st.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := st.CountPosts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testMissingPost(t *testing.T, st store.Store) {
	ctx := context.Background()

	// Valid-looking ObjectID hex so the Mongo backend reaches the database.
	const id = "65a1b2c3d4e5f60718293a4b"

	_, err := st.GetPost(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = st.UpdatePost(ctx, model.Post{ID: id, Title: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = st.DeletePost(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.GetPost(ctx, "not-an-id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func newUser(t *testing.T, st store.Store, email string) model.User {
	t.Helper()

	u, err := st.CreateUser(context.Background(), email, "hash")
	require.NoError(t, err)

	return u
}

func postIDs(ps []model.Post) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}

	return ids
}
