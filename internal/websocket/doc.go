// Package websocket pushes dashboard events to browsers.
//
// A single Hub goroutine owns the client set. Publish encodes an
// events.WebSocketMessage once and fans the bytes out to every client's
// buffered queue; a client whose queue is full is disconnected rather than
// allowed to stall the others. Each Client runs a read pump, which only
// services pongs and close frames, and a write pump, which also sends
// keepalive pings.
//
// Messages are server-to-client only:
//
//	connect            sent once after registration
//	selection:changed  after every accepted selection mutation
//	export:completed   after a successful CSV export
//	data:reloaded      after a file data source was reloaded
package websocket
