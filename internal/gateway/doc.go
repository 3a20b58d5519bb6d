// Package gateway implements the Distribution Gateway.
//
// Live consumers connect over WebSocket and join up to three interest groups
// (snapshot, processlist, timeseries). New data is encoded at most once per
// broadcast and only when some connection is interested. Each connection owns
// a bounded outbox drained by its own writer goroutine, so a slow consumer
// only ever loses its own oldest messages.
//
// Wire protocol (JSON text frames):
//
//	client: {"id":1,"event":"subscribe","data":{"snapshot":true,"timeseries":true}}
//	client: {"id":2,"event":"unsubscribe"}
//	server: {"id":1,"event":"ack","data":{"ok":true,"subscribed":{...}}}
//	server: {"event":"db:snapshot","data":{"snapshot":{...}}}
//	server: {"event":"db:processlist","data":{"processlist":{...}}}
//	server: {"event":"db:timeseries","data":{"from":0,"to":0,"count":0,"items":[]}}
package gateway
