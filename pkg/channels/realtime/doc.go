// Package realtime implements the in-app channel for WebSocket and SSE
// clients.
//
// Each user with a live connection gets a hub: a broadcast.MemoryBroadcaster
// shared by all of the user's sessions. Hubs are kept in an LRU cache so the
// number of users held in memory is bounded; evicting a hub ends its
// sessions and clients are expected to reconnect.
//
// A session may restrict the notification types it wants and is capped by
// a token bucket (10 events/s, burst 20 by default). Events over the cap are
// dropped for that session only. Sessions must ping at least every five
// minutes; Cleanup removes the ones that did not.
//
// # Usage
//
//	rt := realtime.New()
//	s, err := rt.Connect(r.Context(), userID, realtime.SessionOptions{})
//	if err != nil {
//	    return err
//	}
//	for msg := range s.Events() {
//	    // write msg.Data as JSON to the socket
//	}
package realtime
