package broker

import (
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/message"
)

// Covers reports whether scope includes target: scope is no longer than
// target and each part equals the target part or is "*". An empty scope
// covers every domain.
func Covers(scope, target []string) bool {
	if len(scope) > len(target) {
		return false
	}
	for i, s := range scope {
		if s != element.Wildcard && s != target[i] {
			return false
		}
	}
	return true
}

// updateDomain is the update's own domain, or the message domain when empty.
func updateDomain(u *element.UpdateHeader, h *message.Header) []string {
	if u != nil && len(u.Domain) > 0 {
		return u.Domain.Strings()
	}
	if h == nil {
		return nil
	}
	return h.Domain.Strings()
}
