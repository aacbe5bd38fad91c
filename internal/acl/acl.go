// Package acl maps (method, path) pairs to the capability an API key must
// hold to invoke them, and implements Algolia-style index-pattern matching.
package acl

import (
	"net/http"
	"strings"
)

// RequiredACL returns the capability tag required for method/path, following
// the precedence order: keys admin endpoints, analytics endpoints, insights,
// index collection routes, single-index routes, segment-keyed index routes,
// task polling, and finally a catch-all for unrecognized segments under an
// index. Returns "" when no capability applies (caller treats that as
// unauthenticated-allowed or unreachable).
func RequiredACL(method, path string) string {
	if strings.HasPrefix(path, "/1/keys") {
		return "admin"
	}
	if strings.HasPrefix(path, "/2/") {
		return "analytics"
	}
	if path == "/1/events" {
		return "search"
	}

	parts := splitPath(path)

	if len(parts) == 2 && parts[0] == "1" && parts[1] == "indexes" {
		switch method {
		case http.MethodGet:
			return "listIndexes"
		case http.MethodPost:
			return "addObject"
		}
		return ""
	}

	if len(parts) >= 3 && parts[0] == "1" && parts[1] == "indexes" {
		if len(parts) == 3 && parts[2] != "" {
			switch method {
			case http.MethodDelete:
				return "deleteIndex"
			case http.MethodPost:
				return "addObject"
			}
			return ""
		}

		if len(parts) >= 4 {
			segment := parts[3]
			switch segment {
			case "query", "queries", "objects", "facets", "task":
				return "search"
			case "browse":
				return "browse"
			case "batch", "operation":
				return "addObject"
			case "clear", "deleteByQuery":
				return "deleteObject"
			case "settings", "synonyms", "rules":
				if method == http.MethodGet {
					return "settings"
				}
				return "editSettings"
			default:
				switch method {
				case http.MethodGet:
					return "search"
				case http.MethodPut:
					return "addObject"
				case http.MethodDelete:
					return "deleteObject"
				default:
					return "search"
				}
			}
		}
	}

	if len(parts) >= 2 && parts[0] == "1" && parts[1] == "tasks" {
		return "search"
	}

	return ""
}

func splitPath(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

// ExtractIndexName returns the index name embedded in path, or "" if the path
// doesn't carry one. The "queries" and "objects" segments are cross-index
// sentinels and are never treated as an index name.
func ExtractIndexName(path string) string {
	parts := splitPath(path)
	if len(parts) >= 3 && parts[0] == "1" && parts[1] == "indexes" {
		name := parts[2]
		if name != "queries" && name != "objects" {
			return name
		}
	}
	return ""
}

// IndexPatternMatches implements Algolia's pattern semantics: an empty
// pattern list or a literal "*" matches everything; "*x*" is substring;
// "*x" is suffix; "x*" is prefix; anything else is exact equality.
func IndexPatternMatches(patterns []string, indexName string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if matchOne(pattern, indexName) {
			return true
		}
	}
	return false
}

func matchOne(pattern, indexName string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) >= 2:
		inner := pattern[1 : len(pattern)-1]
		return strings.Contains(indexName, inner)
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(indexName, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(indexName, pattern[:len(pattern)-1])
	default:
		return pattern == indexName
	}
}
