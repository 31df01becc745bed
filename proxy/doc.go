// Package proxy implements the transparent HTTP forwarder: one inbound
// request relayed to a caller-chosen absolute URL, with a fixed set of
// security-relevant headers scrubbed in each direction.
package proxy
