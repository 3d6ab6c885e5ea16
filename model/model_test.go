package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpIs tests the Op.Is method.
func TestOpIs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		op       Op
		check    Op
		expected bool
	}{
		{"Create is Create", OpCreate, OpCreate, true},
		{"Create is not Update", OpCreate, OpUpdate, false},
		{"Update is not Delete", OpUpdate, OpDelete, false},
		{"Combined Create|Update is Update", OpCreate | OpUpdate, OpUpdate, true},
		{"Combined Create|Update is not Delete", OpCreate | OpUpdate, OpDelete, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.op.Is(tt.check))
		})
	}
}

// TestOpString tests the Op.String method.
func TestOpString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op       Op
		expected string
	}{
		{OpCreate, "OpCreate"},
		{OpUpdate, "OpUpdate"},
		{OpDelete, "OpDelete"},
		{OpCreate | OpDelete, "OpCreate|OpDelete"},
		{0, "Op(0)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.op.String())
		})
	}
}

func TestOn(t *testing.T) {
	t.Parallel()
	var calls []Op
	h := On(func(_ context.Context, op Op, _ *Record) error {
		calls = append(calls, op)
		return nil
	}, OpCreate|OpUpdate)

	for _, op := range []Op{OpCreate, OpUpdate, OpDelete} {
		require.NoError(t, h(context.Background(), op, nil))
	}
	assert.Equal(t, []Op{OpCreate, OpUpdate}, calls)
}

func TestModelDefaults(t *testing.T) {
	t.Parallel()
	post := New("BlogPost")
	assert.Equal(t, "BlogPost", post.Name())
	assert.Equal(t, "blog_posts", post.TableName())
	assert.Equal(t, "id", post.PrimaryKey())
	assert.True(t, post.Incrementing())
	assert.Equal(t, "blog_post_id", post.ForeignKey())
	assert.True(t, post.TotallyGuarded())

	person := New("Person", Table("people"), PrimaryKey("uuid"), NonIncrementing())
	assert.Equal(t, "people", person.TableName())
	assert.Equal(t, "person_uuid", person.ForeignKey())
	assert.False(t, person.Incrementing())
}

func TestModelIsFillable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		model  *Model
		column string
		want   bool
	}{
		{"fillable", New("U", Fillable("name")), "name", true},
		{"guarded by star", New("U", Fillable("name")), "role", false},
		{"totally guarded", New("U"), "name", false},
		{"unguarded", New("U", Unguarded()), "role", true},
		{"explicit guard", New("U", Guarded("role")), "role", false},
		{"not in explicit guard", New("U", Guarded("role")), "name", true},
		{"dotted key", New("U", Guarded("role")), "profile.name", false},
		{"underscore key", New("U", Guarded("role")), "_token", false},
		{"fillable wins over guard", New("U", Fillable("role"), Guarded("role")), "role", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.model.IsFillable(tt.column))
		})
	}
	assert.False(t, New("U", Guarded()).TotallyGuarded())
}

func TestModelRelations(t *testing.T) {
	t.Parallel()
	user := New("User")
	post := New("Post")
	profile := New("Profile")
	user.HasMany("posts", post).HasOne("profile", profile, "owner_id", "id")
	post.BelongsTo("author", user, "author_id")

	posts, ok := user.Relation("posts")
	require.True(t, ok)
	assert.Equal(t, RelHasMany, posts.Kind)
	assert.True(t, posts.Many())
	assert.Equal(t, "user_id", posts.ForeignKey)
	assert.Equal(t, "id", posts.LocalKey)
	assert.Equal(t, "id", posts.ParentColumn())
	assert.Equal(t, "user_id", posts.RelatedColumn())

	prof, ok := user.Relation("profile")
	require.True(t, ok)
	assert.Equal(t, "owner_id", prof.ForeignKey)
	assert.False(t, prof.Many())

	author, ok := post.Relation("author")
	require.True(t, ok)
	assert.Equal(t, RelBelongsTo, author.Kind)
	assert.Equal(t, "author_id", author.ParentColumn())
	assert.Equal(t, "id", author.RelatedColumn())
	assert.Equal(t, "BelongsTo", author.Kind.String())

	post.BelongsTo("user", user)
	byDefault, _ := post.Relation("user")
	assert.Equal(t, "user_id", byDefault.ForeignKey)

	_, ok = user.Relation("comments")
	assert.False(t, ok)
}

type stampMixin struct {
	MixinBase
	column string
}

func (m stampMixin) Hooks() []Hook {
	return []Hook{
		On(func(_ context.Context, _ Op, r *Record) error {
			return r.Set(m.column, "mixin")
		}, OpCreate),
	}
}

func TestModelHooksOrder(t *testing.T) {
	t.Parallel()
	var order []string
	errStop := errors.New("stop")
	m := New("Note",
		Unguarded(),
		Mixins(stampMixin{column: "source"}),
		Hooks(func(_ context.Context, op Op, r *Record) error {
			order = append(order, r.Get("source").Str())
			if op.Is(OpDelete) {
				return errStop
			}
			return nil
		}),
	)
	r := newRecord(nil, m)
	require.NoError(t, m.runHooks(context.Background(), OpCreate, r))
	assert.Equal(t, []string{"mixin"}, order)
	assert.ErrorIs(t, m.runHooks(context.Background(), OpDelete, r), errStop)
}
