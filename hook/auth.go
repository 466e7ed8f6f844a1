package hook

import (
	"crypto/subtle"
	"sync"

	"github.com/coremq/broker/topic"
)

// BasicAuthHook provides username/password authentication
type BasicAuthHook struct {
	*Base
	mu    sync.RWMutex
	users map[string]string
}

// NewBasicAuthHook creates a new basic authentication hook
func NewBasicAuthHook() *BasicAuthHook {
	return &BasicAuthHook{
		Base:  &Base{id: "basic-auth"},
		users: make(map[string]string),
	}
}

// ID returns the hook identifier
func (h *BasicAuthHook) ID() string {
	return h.id
}

// Provides indicates this hook provides authentication
func (h *BasicAuthHook) Provides(event Event) bool {
	return event == OnConnectAuthenticate
}

// AddUser adds a user with username and password
func (h *BasicAuthHook) AddUser(username, password string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[username] = password
}

// RemoveUser removes a user by username
func (h *BasicAuthHook) RemoveUser(username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.users, username)
}

// HasUser checks if a user exists
func (h *BasicAuthHook) HasUser(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.users[username]
	return exists
}

// UserCount returns the number of registered users
func (h *BasicAuthHook) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// Clear removes all users
func (h *BasicAuthHook) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users = make(map[string]string)
}

// OnConnectAuthenticate validates username and password
func (h *BasicAuthHook) OnConnectAuthenticate(client *Client, packet *ConnectPacket) bool {
	h.mu.RLock()
	expectedPassword, exists := h.users[packet.Username]
	h.mu.RUnlock()

	if !exists {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(expectedPassword), packet.Password) == 1
}

// LoadUsers loads multiple users at once
func (h *BasicAuthHook) LoadUsers(users map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for username, password := range users {
		h.users[username] = password
	}
}

// AnonymousAuthHook AllowAnonymous sets whether to allow clients with no username/password
type AnonymousAuthHook struct {
	*Base
	allowAnonymous bool
	mu             sync.RWMutex
}

// NewAnonymousAuthHook creates a hook that controls anonymous access
func NewAnonymousAuthHook(allowAnonymous bool) *AnonymousAuthHook {
	return &AnonymousAuthHook{
		Base:           &Base{id: "anonymous-auth"},
		allowAnonymous: allowAnonymous,
	}
}

// ID returns the hook identifier
func (h *AnonymousAuthHook) ID() string {
	return h.id
}

// Provides indicates this hook provides authentication
func (h *AnonymousAuthHook) Provides(event Event) bool {
	return event == OnConnectAuthenticate
}

// SetAllowAnonymous sets whether to allow anonymous connections
func (h *AnonymousAuthHook) SetAllowAnonymous(allow bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowAnonymous = allow
}

// IsAnonymousAllowed returns whether anonymous connections are allowed
func (h *AnonymousAuthHook) IsAnonymousAllowed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.allowAnonymous
}

// OnConnectAuthenticate checks if anonymous access is allowed
func (h *AnonymousAuthHook) OnConnectAuthenticate(client *Client, packet *ConnectPacket) bool {
	h.mu.RLock()
	allow := h.allowAnonymous
	h.mu.RUnlock()

	if packet.Username == "" && packet.Password == nil {
		return allow
	}

	return true
}

// ACLRule grants or denies one user's access to a topic filter pattern.
// Access is one of "read", "write", "readwrite", or "deny".
type ACLRule struct {
	Username    string
	TopicFilter string
	Access      string
}

// ACLHook enforces a static list of per-user topic ACL rules. Rules are
// matched in order; the first rule whose TopicFilter matches the checked
// topic (via the same wildcard semantics as a subscription filter) decides
// the outcome. A user with no matching rule is denied — ACLHook is
// deny-by-default, unlike AnonymousAuthHook's allow-by-default posture.
type ACLHook struct {
	*Base
	matcher *topic.TopicMatcher
	rules   []ACLRule
}

// NewACLHook creates an ACL hook from a static rule set.
func NewACLHook(rules []ACLRule) *ACLHook {
	return &ACLHook{
		Base:    &Base{id: "acl"},
		matcher: topic.NewTopicMatcher(),
		rules:   rules,
	}
}

// ID returns the hook identifier
func (h *ACLHook) ID() string {
	return h.id
}

// Provides indicates this hook provides ACL checks
func (h *ACLHook) Provides(event Event) bool {
	return event == OnACLCheck
}

// OnACLCheck walks the rule set for a match on (client, topicFilter) and
// returns whether the requested access is granted.
func (h *ACLHook) OnACLCheck(client *Client, topic string, access AccessType) bool {
	for _, rule := range h.rules {
		if rule.Username != client.Username {
			continue
		}
		if !h.matcher.Match(rule.TopicFilter, topic) {
			continue
		}
		return aclAllows(rule.Access, access)
	}
	return false
}

func aclAllows(granted string, requested AccessType) bool {
	switch granted {
	case "readwrite":
		return true
	case "read":
		return requested == AccessTypeRead
	case "write":
		return requested == AccessTypeWrite
	default: // "deny" or unrecognized
		return false
	}
}
