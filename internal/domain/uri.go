package domain

import (
	"net/url"
	"strings"
)

// URI is an allocation record reserving an external identifier against
// exactly one internal resource.
type URI struct {
	ID        int64
	URI       string
	Allocated bool
}

// LocalActorURI builds the canonical URI of a local actor.
func LocalActorURI(base *url.URL, username string) *url.URL {
	return base.JoinPath("@" + username)
}

// LocalStatusURI builds the canonical URI of a local status. The acct segment
// is the actor's username, or username@host for an announced remote author.
func LocalStatusURI(base *url.URL, acct, id string) *url.URL {
	return base.JoinPath("@"+acct, id)
}

// LocalKeyURI builds the keyId under which a local actor's public key is
// published.
func LocalKeyURI(base *url.URL, username string) *url.URL {
	u := LocalActorURI(base, username)
	u.Fragment = "main-key"
	return u
}

// LocalUsernameFromURI reports the username addressed by uri if it matches
// this instance's local actor pattern.
func LocalUsernameFromURI(base *url.URL, uri string) (string, bool) {
	prefix := base.JoinPath("@").String()
	if !strings.HasPrefix(uri, prefix) {
		return "", false
	}

	rest := strings.TrimPrefix(uri, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	username, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return username, true
}

// LocalStatusFromURI reports the username and status id addressed by uri if
// it matches this instance's local status pattern.
func LocalStatusFromURI(base *url.URL, uri string) (username, id string, ok bool) {
	prefix := base.JoinPath("@").String()
	if !strings.HasPrefix(uri, prefix) {
		return "", "", false
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	username, err := url.PathUnescape(parts[0])
	if err != nil {
		return "", "", false
	}
	return username, parts[1], true
}
