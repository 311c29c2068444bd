package store

import "errors"

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("not found")

// ErrChangesetInProgress is returned by Begin when another changeset
// already has status in_progress.
var ErrChangesetInProgress = errors.New("a changeset is already in progress")
