// Package client is the HTTP side of a watched run: it opens authenticated
// event streams, reads persisted run state and requests server-side
// cancellation. Path arguments are relative to the base URL; ExpandPath
// fills the {id} placeholder of configured path templates.
package client
