// Package search holds the query-string codec and the search-state helpers
// used while building locations: inheritance, defaults, middlewares and
// structural sharing between successive states.
package search
