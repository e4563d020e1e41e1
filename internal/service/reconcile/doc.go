// Package reconcile matches inbound SES delivery notifications against
// previously recorded send attempts.
//
// Notifications arrive out of order, at-least-once, and sometimes without
// a usable message ID. The reconciler resolves each one to an attempt
// (exact message-ID hit first, then a recipient+time-window heuristic),
// appends the corresponding event idempotently, and keeps the suppression
// list current from bounce and complaint signals. A notification that
// cannot be matched is logged and dropped; the provider is never asked
// to retry.
package reconcile
