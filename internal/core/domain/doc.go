// Package domain defines the core domain models for VendCore:
// authentication sessions, card keys, wallets, dispense records, and
// the structured error taxonomy shared by all services.
//
// Domain models are pure value objects without IO dependencies.
package domain
