// Package core implements the actor runtime socialshard is built on.
//
// Every actor owns a mailbox served by a single goroutine, so a handler
// never runs concurrently with another handler of the same actor. Actors
// reach each other through Ref.Call, which waits for a reply, and
// Ref.Notify, which does not. The runtime stamps every delivered message
// with the sender's identity; handlers read it with Caller and have no way
// to forge it.
package core
