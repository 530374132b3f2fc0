// Package bridge exposes the engine supervisor over MQTT.
//
// Topics live under {prefix}/{instance}/ (see mqtt.Topics):
//
//	command/boot   in   optional {"request_id": "..."}
//	command/quit   in   optional {"request_id": "..."}
//	command/send   in   {"address": "/s_new", "args": [...], "request_id": "..."}
//	result/{cmd}   out  {"command", "request_id", "ok", "error", "time"}
//	status         out  retained supervisor.Update as JSON
//	reply          out  {"from", "message", "time"} per decoded datagram
//
// Datagrams the OSC codec cannot decode are counted and dropped.
package bridge
