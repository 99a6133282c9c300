// Package errors defines the error kinds shared across the proxy.
package errors

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrBackendUnreachable is returned when a backend server cannot be
	// contacted. The loader continues with the next configured server.
	ErrBackendUnreachable = errors.NewKind("backend %s unreachable: %s")

	// ErrPermissionsMissing is returned when the service account lacks
	// SELECT on a required mysql grant table.
	ErrPermissionsMissing = errors.NewKind("missing SELECT privilege on %s")

	// ErrQueryFailed is returned when a grant or SHOW DATABASES query fails.
	ErrQueryFailed = errors.NewKind("query failed on backend %s: %s")

	// ErrParseFailed is returned for a malformed host pattern. The offending
	// row is skipped.
	ErrParseFailed = errors.NewKind("cannot parse host pattern %q")

	// ErrPersistenceIO is returned when saving or loading the user snapshot
	// file fails. In-memory state is unaffected.
	ErrPersistenceIO = errors.NewKind("user snapshot %s: %s")

	// ErrNoUsersLoaded is returned when no configured backend yielded any
	// user entries.
	ErrNoUsersLoaded = errors.NewKind("no users loaded from any backend")

	// ErrConfigLoad is returned when the configuration cannot be read.
	ErrConfigLoad = errors.NewKind("config load failed: %s")

	// ErrNoBackends is returned when the listener is started without any
	// configured backend server.
	ErrNoBackends = errors.NewKind("no backend servers configured")
)
