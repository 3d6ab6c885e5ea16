package model

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
)

// blog returns a fresh set of related models for one test.
func blog() (user, post, comment, profile *Model) {
	user = New("User")
	post = New("Post")
	comment = New("Comment")
	profile = New("Profile")
	user.HasMany("posts", post).HasOne("profile", profile)
	post.BelongsTo("author", user, "user_id").HasMany("comments", comment)
	return user, post, comment, profile
}

func TestEagerLoadHasManySingleQuery(t *testing.T) {
	ctx := context.Background()
	c, mock := newClient(t, dialect.MySQL)
	user, _, _, _ := blog()

	users := sqlmock.NewRows([]string{"id"})
	ids := make([]string, 100)
	for i := range 100 {
		users.AddRow(i + 1)
		ids[i] = fmt.Sprint(i + 1)
	}
	mock.ExpectQuery("SELECT * FROM `users`").WillReturnRows(users)
	mock.ExpectQuery("SELECT * FROM `posts` WHERE `user_id` IN (" + strings.Join(ids, ", ") + ")").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(1, 1, "a").
			AddRow(2, 1, "b").
			AddRow(3, 50, "c"))

	all, err := c.Repository(user).With("posts").Get(ctx)
	require.NoError(t, err)
	require.Len(t, all, 100)
	require.NoError(t, mock.ExpectationsWereMet())

	for i, u := range all {
		posts, err := u.Many(ctx, "posts")
		require.NoError(t, err)
		switch i + 1 {
		case 1:
			assert.Equal(t, []Value{String("a"), String("b")}, posts.Pluck("title"))
		case 50:
			assert.Len(t, posts, 1)
		default:
			assert.NotNil(t, posts)
			assert.Empty(t, posts)
		}
	}
}

func TestEagerLoadBelongsToAndHasOne(t *testing.T) {
	ctx := context.Background()
	c, mock := newClient(t, dialect.MySQL)
	user, post, _, _ := blog()

	mock.ExpectQuery("SELECT * FROM `posts`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).
			AddRow(1, 7).AddRow(2, 7).AddRow(3, nil).AddRow(4, 9))
	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` IN (7, 9)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "Ana"))
	posts, err := c.Repository(post).With("author").Get(ctx)
	require.NoError(t, err)

	a, err := posts[0].One(ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, "Ana", a.Get("name").Str())
	b, _ := posts[1].One(ctx, "author")
	assert.Same(t, a, b)
	for _, p := range posts[2:] {
		orphan, err := p.One(ctx, "author")
		require.NoError(t, err)
		assert.Nil(t, orphan)
	}

	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` = 7 LIMIT 0, 1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT * FROM `profiles` WHERE `user_id` IN (7)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}).AddRow(1, 7, "hi"))
	u, err := c.Repository(user).With("profile").Find(ctx, 7)
	require.NoError(t, err)
	prof, err := u.One(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, "hi", prof.Get("bio").Str())

	_, err = u.Many(ctx, "profile")
	assert.True(t, mate.IsInvalidArguments(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadNested(t *testing.T) {
	ctx := context.Background()
	c, mock := newClient(t, dialect.MySQL)
	user, _, _, _ := blog()

	mock.ExpectQuery("SELECT * FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery("SELECT * FROM `posts` WHERE `user_id` IN (1, 2)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(10, 1).AddRow(11, 2))
	mock.ExpectQuery("SELECT * FROM `comments` WHERE `post_id` IN (10, 11)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}).AddRow(100, 11))
	mock.ExpectQuery("SELECT * FROM `profiles` WHERE `user_id` IN (1, 2)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}))

	all, err := c.Repository(user).With("posts.comments", "profile").Get(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	arr, err := Collection(all).ToArray()
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{
			"id":      int64(1),
			"profile": nil,
			"posts": []map[string]any{
				{"id": int64(10), "user_id": int64(1), "comments": []map[string]any{}},
			},
		},
		{
			"id":      int64(2),
			"profile": nil,
			"posts": []map[string]any{
				{"id": int64(11), "user_id": int64(2), "comments": []map[string]any{
					{"id": int64(100), "post_id": int64(11)},
				}},
			},
		},
	}, arr)
}

func TestEagerLoadUnknownRelation(t *testing.T) {
	ctx := context.Background()
	c, mock := newClient(t, dialect.MySQL)
	user, _, _, _ := blog()

	mock.ExpectQuery("SELECT * FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	_, err := c.Repository(user).With("followers").Get(ctx)
	require.Error(t, err)
	assert.True(t, mate.IsInvalidArguments(err))
	assert.Contains(t, err.Error(), "call to undefined relationship [followers] on model [User]")

	u := c.Repository(user).Hydrate([]dialect.Row{{"id": int64(1)}}).First()
	_, err = u.QueryRelation("followers")
	assert.True(t, mate.IsInvalidArguments(err))
	_, err = u.Many(ctx, "followers")
	assert.True(t, mate.IsInvalidArguments(err))
}

func TestLazyRelations(t *testing.T) {
	ctx := context.Background()
	c, mock := newClient(t, dialect.MySQL)
	user, post, _, _ := blog()
	u := c.Repository(user).Hydrate([]dialect.Row{{"id": int64(3)}}).First()

	mock.ExpectQuery("SELECT * FROM `posts` WHERE `user_id` = 3 AND `user_id` IS NOT NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(1, 3))
	posts, err := u.Many(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	// Cached after the first access.
	again, err := u.Many(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, posts, again)
	assert.True(t, u.Loaded("posts"))

	mock.ExpectQuery("SELECT * FROM `posts` WHERE `user_id` = 3 AND `user_id` IS NOT NULL ORDER BY `id` DESC LIMIT 0, 5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}))
	q, err := u.QueryRelation("posts")
	require.NoError(t, err)
	recent, err := q.OrderByDesc("id").Limit(5).Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, recent)

	// A parent without a link value resolves without a query.
	orphan := c.Repository(post).Hydrate([]dialect.Row{{"id": int64(1), "user_id": nil}}).First()
	author, err := orphan.One(ctx, "author")
	require.NoError(t, err)
	assert.Nil(t, author)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionLoad(t *testing.T) {
	ctx := context.Background()
	c, mock := newClient(t, dialect.Postgres)
	user, _, _, _ := blog()
	users := c.Repository(user).Hydrate([]dialect.Row{{"id": int64(1)}, {"id": int64(2)}})

	mock.ExpectQuery(`SELECT * FROM "posts" WHERE "user_id" IN (1, 2)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(5, 2))
	require.NoError(t, users.Load(ctx, "posts"))
	require.NoError(t, Collection{}.Load(ctx, "posts"))

	first, err := users[0].Relation("posts")
	require.NoError(t, err)
	assert.Empty(t, first)
	second, err := users[1].Relation("posts")
	require.NoError(t, err)
	assert.Len(t, second, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
