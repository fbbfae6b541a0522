// Package cli provides the securedrop command-line client.
//
// The client is where encryption happens. upload seals a file with a fresh
// AES-256-GCM key, sends only ciphertext and nonce to the server and prints
// a share link carrying the key in its fragment. download parses such a
// link, fetches the ciphertext through a short-lived capability, decrypts it
// locally and, for one-time shares, consumes the share. delete asks the
// server to destroy a share.
package cli
