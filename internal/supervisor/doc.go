// Package supervisor owns the audio engine process and the UDP socket used
// to talk to it.
//
// A Supervisor is a single goroutine (the actor) draining a bounded mailbox.
// Commands from callers (Boot, Quit, Send, Status, Close) and notifications
// from the process and socket watchers all arrive through that mailbox, so
// the lifecycle state is only ever touched by one goroutine.
//
// Lifecycle:
//
//	stopped ──Boot──▶ running ──Quit / exit 0──▶ stopped
//	   ▲                 │
//	   │                 ├──exit≠0 / died / fatal output──▶ crashed
//	   │                 │
//	   └──Quit── errored ◀──launch or socket failure (from Boot)
//
// Socket failures while running are repaired in place: the failed socket is
// closed and a fresh one opened, without changing status.
//
// Every process and socket is tagged with a generation number when it is
// created. Notifications carrying an old generation (a late exit after Quit,
// a socket that was already replaced) are ignored.
package supervisor
