// Package store is the persistence layer for users and refresh tokens.
//
// Stores wrap a *gorm.DB that may be the root handle or a transaction, so a
// service can bind several stores to the same unit of work.
package store

import "errors"

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)
