// Package git wraps go-git operations on the book source repository.
//
// The package covers:
//   - Fresh checkouts with authentication (SSH, token, basic)
//   - Incremental sync with divergence detection and resolution
//   - Lightweight ls-remote head resolution without a local clone
//   - Retry logic for transient failures
//   - Typed errors for structured error handling
//
// Publishing to the target repository uses its own credentials and lives in
// the publish package; only the shared plumbing is here.
package git
