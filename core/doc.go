// Package core contains the integration lifecycle contracts: the state
// machine, the error taxonomy, retry with failover, and the Controller that
// ties credentials, events and webhooks to one integration instance.
// Provider packages depend on core; core never imports a provider.
package core
