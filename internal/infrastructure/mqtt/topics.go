package mqtt

import (
	"fmt"
	"strings"
)

// Command names accepted under a Topics' command subtree.
const (
	CommandBoot = "boot"
	CommandQuit = "quit"
	CommandSend = "send"
)

// Topics builds the topic tree of one synthd instance:
//
//	{prefix}/{instance}/online          retained daemon presence (also the LWT)
//	{prefix}/{instance}/status          retained latest supervisor update
//	{prefix}/{instance}/reply           decoded OSC replies from the engine
//	{prefix}/{instance}/command/{name}  boot, quit, send
//	{prefix}/{instance}/result/{name}   outcome of each command
type Topics struct {
	Prefix   string
	Instance string
}

// NewTopics returns the topic builder for an instance. An empty prefix
// means "synthd".
func NewTopics(prefix, instance string) Topics {
	if prefix == "" {
		prefix = "synthd"
	}
	return Topics{Prefix: strings.TrimSuffix(prefix, "/"), Instance: instance}
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", t.Prefix, t.Instance)
}

// Online returns the presence topic.
//
// Example: synthd/studio-a/online
func (t Topics) Online() string {
	return t.base() + "/online"
}

// Status returns the supervisor status topic.
//
// Example: synthd/studio-a/status
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Reply returns the topic for engine replies.
//
// Example: synthd/studio-a/reply
func (t Topics) Reply() string {
	return t.base() + "/reply"
}

// Command returns the topic for one command.
//
// Example: synthd/studio-a/command/boot
func (t Topics) Command(name string) string {
	return t.base() + "/command/" + name
}

// Result returns the topic a command's outcome is published on.
//
// Example: synthd/studio-a/result/boot
func (t Topics) Result(name string) string {
	return t.base() + "/result/" + name
}

// AllCommands matches every command topic of the instance.
//
// Pattern: synthd/studio-a/command/+
func (t Topics) AllCommands() string {
	return t.base() + "/command/+"
}

// CommandName extracts the command from a topic matched by AllCommands.
func (t Topics) CommandName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.base()+"/command/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
