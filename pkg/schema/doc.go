// Package schema provides search validators for routes.
//
// Struct decodes a search record into a Go struct with weak typing and
// checks its `validate` tags:
//
//	type PostsSearch struct {
//	    Page int    `search:"page" validate:"gte=1"`
//	    Sort string `search:"sort" validate:"omitempty,oneof=asc desc"`
//	}
//
//	router.NewRoute(router.RouteOptions{
//	    Path:           "posts",
//	    SearchDefaults: search.Values{"page": 1},
//	    ValidateSearch: schema.Struct[PostsSearch](),
//	})
//
// JSONSchema validates the record against a JSON Schema document instead.
// Both report failures as *Error.
package schema
