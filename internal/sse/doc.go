// Package sse decodes text/event-stream bodies into frames.
//
// A Decoder is fed raw chunks exactly as they arrive from the network. It
// keeps a partial UTF-8 sequence and any unterminated frame text between
// calls, so the frames it returns never depend on where the transport split
// the body. Heartbeat comment lines (":" prefix) never become frames.
package sse
