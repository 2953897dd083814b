// Package providers groups the built-in integration kinds and their
// provider adapters. Each subpackage exposes a core.Kind for lifecycle
// management and one or more capability adapters that run through
// core.Invoke.
package providers
