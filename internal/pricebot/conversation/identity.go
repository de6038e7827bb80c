// Package conversation defines the canonical message shapes exchanged between
// channel adapters and the dialogue engine, and how conversation ids encode
// their channel.
package conversation

import (
	"strings"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Conversation ids carry their channel as a prefix so a reply can be routed
// back without a lookup.
const (
	PrefixTelegram = "tg:"
	PrefixWeb      = "web:"
	PrefixAPI      = "api:"
)

// ID builds a conversation id for raw on platform.
func ID(platform domain.Platform, raw string) string {
	return prefixFor(platform) + raw
}

// Split returns the platform and the channel-local id of a conversation id.
func Split(id string) (domain.Platform, string, bool) {
	switch {
	case strings.HasPrefix(id, PrefixTelegram):
		return domain.PlatformTelegram, strings.TrimPrefix(id, PrefixTelegram), true
	case strings.HasPrefix(id, PrefixWeb):
		return domain.PlatformWeb, strings.TrimPrefix(id, PrefixWeb), true
	case strings.HasPrefix(id, PrefixAPI):
		return domain.PlatformAPI, strings.TrimPrefix(id, PrefixAPI), true
	}
	return "", "", false
}

// PlatformOf returns the platform encoded in id, or "" when unknown.
func PlatformOf(id string) domain.Platform {
	p, _, _ := Split(id)
	return p
}

func prefixFor(p domain.Platform) string {
	switch p {
	case domain.PlatformTelegram:
		return PrefixTelegram
	case domain.PlatformWeb:
		return PrefixWeb
	case domain.PlatformAPI:
		return PrefixAPI
	}
	return string(p) + ":"
}
