// Package benchmark holds cross-package benchmarks for the hot paths:
// the DESFire handshake and the wallet debit.
//
// Run with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/
package benchmark
