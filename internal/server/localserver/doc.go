// Package localserver provides the Unix socket service endpoint.
//
// Vending machine gateways on the same host talk to vendcore-server
// over a Unix domain socket using newline-delimited JSON: one request
// object per line, one response object per line. Operations:
//
//   - auth.start     begin a card handshake
//   - auth.continue  forward the card's encrypted nonce
//   - auth.finalize  forward the card's proof and get the verdict
//   - dispense       debit the wallet linked to a card
//   - status         session population by state
//
// Security:
//
//   - Only accessible via the Unix domain socket
//   - File system permissions control access
//   - Card responses and APDUs travel hex encoded
package localserver
