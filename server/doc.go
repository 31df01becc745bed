// Package server implements the OAuth orchestrator: the authorize and
// callback legs of the flow, token refresh, session unwrapping, and the
// redirect allowlist. The HTTP adapter in the root package is a thin layer
// over this one.
package server
