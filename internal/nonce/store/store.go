// Package store holds nonce stores. Every implementation must make Consume
// an indivisible check-and-delete.
package store

import "errors"

// ErrCollision means a freshly generated token already exists.
var ErrCollision = errors.New("nonce collision")
