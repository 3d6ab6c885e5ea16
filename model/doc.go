// Package model implements active records on top of the query builder.
//
// A Model declares a record type once; a Client carries the driver; a
// Repository joins the two and hydrates query results into Records:
//
//	var User = model.New("User", model.Fillable("name", "email"), model.Strict())
//	var Post = model.New("Post", model.Fillable("title"))
//
//	func init() {
//		User.HasMany("posts", Post)
//		Post.BelongsTo("author", User, "user_id")
//	}
//
//	users := model.NewClient(drv).Repository(User)
//	u, err := users.Create(ctx, map[string]any{"name": "Ana"})
//	all, err := users.With("posts").Get(ctx) // two queries, whatever the number of users
//
// Attributes are held as Values, a tagged variant of the scalar and
// structured types a column can carry. Declared casts apply on write and
// on read.
package model
