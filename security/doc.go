// Package security implements the encrypted state token codec and shared
// security helpers for the OAuth gateway.
//
// The state codec is the mechanism that lets the gateway run without any
// server-side session storage: everything a flow needs to resume after the
// provider redirect (the return URL, or a long-lived credential) travels
// inside an AES-256-GCM sealed token held by the browser.
package security
