// Package keys derives cache namespace keys from a scope and an optional subscope.
package keys

import "strings"

// DefaultScope is used when no scope is supplied.
const DefaultScope = "global"

// Separator joins scope and subscope in a namespace key.
const Separator = "::"

// Derive returns the namespace key for scope and subscope, in the form
// scope[::subscope]. An empty scope becomes DefaultScope.
func Derive(scope, subscope string) string {
	if scope == "" {
		scope = DefaultScope
	}
	if subscope == "" {
		return scope
	}
	return scope + Separator + subscope
}

// Split is the inverse of Derive. A key without a separator has no subscope.
func Split(key string) (scope, subscope string) {
	scope, subscope, _ = strings.Cut(key, Separator)
	return scope, subscope
}
