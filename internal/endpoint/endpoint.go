// Package endpoint implements kosmokopy's source/destination address
// model: parsing "host:path" vs a plain local path, normalising names,
// and joining a relative path onto either kind of root.
package endpoint

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Endpoint is either a Local path or a Remote host:path pair.
type Endpoint interface {
	// Display renders the endpoint the way a user would type it.
	Display() string
	isEndpoint()
}

// Local is a path on the current host.
type Local struct {
	Path string
}

func (Local) isEndpoint() {}

// Display implements Endpoint.
func (l Local) Display() string { return l.Path }

// Remote is a path on an SSH-reachable host.
type Remote struct {
	Host string
	Path string
}

func (Remote) isEndpoint() {}

// Display implements Endpoint.
func (r Remote) Display() string { return r.Host + ":" + r.Path }

// Parse classifies s as Local or Remote. A string is Remote iff it
// contains a ':' before any path separator and the prefix up to that
// colon is a valid SSH host token ("user@host" or "host").
func Parse(s string) (Endpoint, error) {
	if s == "" {
		return nil, fmt.Errorf("endpoint: empty path")
	}

	sepIdx := strings.IndexAny(s, "/\\")
	colonIdx := strings.Index(s, ":")

	if colonIdx >= 0 && (sepIdx < 0 || colonIdx < sepIdx) {
		host := s[:colonIdx]
		path := s[colonIdx+1:]
		if isValidHostToken(host) && path != "" {
			return Remote{Host: host, Path: path}, nil
		}
	}

	return Local{Path: s}, nil
}

// isValidHostToken accepts "user@host" or "host" where host/user are
// non-empty tokens containing neither '/' nor whitespace. A lone drive
// letter like "C" (as in "C:\path") is rejected so Windows-style local
// paths are never misparsed as remote endpoints.
func isValidHostToken(tok string) bool {
	if tok == "" {
		return false
	}
	if len(tok) == 1 {
		return false
	}
	user, host := "", tok
	if at := strings.Index(tok, "@"); at >= 0 {
		user, host = tok[:at], tok[at+1:]
		if user == "" || host == "" {
			return false
		}
	}
	if strings.ContainsAny(host, "/\\ \t") {
		return false
	}
	if strings.ContainsAny(user, "/\\ \t") {
		return false
	}
	return true
}

// Display renders any endpoint the way a user would type it.
func Display(e Endpoint) string { return e.Display() }

// Join appends a relative path onto an endpoint's root, using the
// appropriate separator convention for the endpoint kind.
func Join(e Endpoint, rel string) Endpoint {
	switch v := e.(type) {
	case Local:
		if rel == "" {
			return v
		}
		return Local{Path: joinLocal(v.Path, rel)}
	case Remote:
		if rel == "" {
			return v
		}
		return Remote{Host: v.Host, Path: joinRemote(v.Path, rel)}
	default:
		return e
	}
}

func joinLocal(base, rel string) string {
	return filepath.Join(base, rel)
}

func joinRemote(base, rel string) string {
	base = strings.TrimRight(base, "/")
	rel = strings.TrimLeft(rel, "/")
	if base == "" {
		return "/" + rel
	}
	return base + "/" + rel
}

// RewriteName removes every ASCII space (0x20) from a single path
// segment when stripSpaces is set. It is applied independently to each
// segment of a path (both the file name and intermediate directory
// names) by callers, so the result is idempotent: rewriting an
// already-rewritten segment is a no-op.
func RewriteName(name string, stripSpaces bool) string {
	if !stripSpaces {
		return name
	}
	return strings.ReplaceAll(name, " ", "")
}
