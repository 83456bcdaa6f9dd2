package services

import (
	"strings"

	"qr-cipher-bot/internal/core/domain"
)

// AccessPolicy restricts the bot to a set of Telegram usernames. An empty
// policy lets everyone in.
type AccessPolicy struct {
	allowed map[string]struct{}
}

func NewAccessPolicy(usernames []string) *AccessPolicy {
	allowed := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		if name := normalizeUsername(u); name != "" {
			allowed[name] = struct{}{}
		}
	}
	return &AccessPolicy{allowed: allowed}
}

// Open reports whether the policy admits every user.
func (p *AccessPolicy) Open() bool {
	return p == nil || len(p.allowed) == 0
}

func (p *AccessPolicy) Allowed(user *domain.User) bool {
	if p.Open() {
		return true
	}
	if user == nil || user.Username == "" {
		return false
	}
	_, ok := p.allowed[normalizeUsername(user.Username)]
	return ok
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}
