// Package webhooks fronts Controller.HandleWebhook with signature
// verification and delivery dedupe.
//
// Deliveries move through a small ledger lifecycle:
// pending -> processed | retry_ready -> pending -> processed | dead.
// Reserving a delivery claims it, so concurrent redeliveries reach the
// handler once. A duplicate of a pending delivery is answered 409 in flight;
// one that already reached processed or dead is acknowledged without
// invoking the handler again.
package webhooks
