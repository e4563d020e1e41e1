// Package tracking implements the send-attempt store and the append-only
// per-email event log.
//
// Every outbound email gets a send-attempt row before (or at) hand-off to
// the delivery provider; provider message IDs are attached later, exactly
// once, either at send confirmation or when the first notification can be
// matched back. Events are append-only and, for provider-sourced kinds,
// unique per (email, kind).
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package tracking
