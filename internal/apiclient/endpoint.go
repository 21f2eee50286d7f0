package apiclient

import (
	"encoding/json"
	"net/http"
	"strings"
)

type endpointKind int

const (
	kindOther endpointKind = iota
	// kindCollection covers user-scoped ("/my") and marathon listing paths.
	kindCollection
	kindStats
)

func kindOf(endpoint string) endpointKind {
	path, _, _ := strings.Cut(endpoint, "?")
	switch {
	case strings.Contains(path, "/my"), strings.Contains(path, "/marathons"):
		return kindCollection
	case strings.Contains(path, "/stats"):
		return kindStats
	default:
		return kindOther
	}
}

// networkFallback returns the value a failed round trip resolves to, or false
// when the failure must be raised. Only reads degrade: a write that never
// reached the server has to be reported.
func networkFallback(method string, kind endpointKind) (json.RawMessage, bool) {
	if method != http.MethodGet {
		return nil, false
	}
	switch kind {
	case kindCollection:
		return emptyCollection, true
	case kindStats:
		return zeroStats, true
	default:
		return nil, false
	}
}

// contentFallback returns the value a non-JSON or empty 2xx body resolves to.
func contentFallback(method string, kind endpointKind) json.RawMessage {
	if method == http.MethodGet && kind == kindCollection {
		return emptyCollection
	}
	return emptyObject
}
