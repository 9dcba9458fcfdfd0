// Package desfire implements the cryptographic primitives of the
// NXP DESFire EV1/EV2 AES mutual-authentication handshake.
//
// The byte-level behavior here is fixed by the card hardware: AES-128
// in CBC mode with a zero IV and no padding, single-byte left rotation
// of nonces, and the NXP session-key derivation layout. None of it is
// negotiable; correctness means matching the card bit for bit.
//
// All functions are pure and safe for concurrent use.
package desfire
