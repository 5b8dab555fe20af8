package apdoc

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sidereusnuntius/feather/internal/federation"
)

// AnyHost pins a document to no host at all: embedded content is trusted
// wherever its id points. Used for documents this server authored itself.
const AnyHost = "*"

// Fetcher dereferences an IRI into a decoded JSON-LD body.
type Fetcher interface {
	Get(ctx context.Context, iri *url.URL) (map[string]any, error)
}

// Document is a lazily-dereferenced ActivityStreams object pinned to an
// origin host. Embedded content whose id lives on a different host than the
// pin is discarded and refetched from the id, so a peer cannot smuggle
// another server's objects inside its own payloads. Children inherit the
// parent's pin and @context.
type Document struct {
	fetcher Fetcher
	parent  *Document

	mu    sync.Mutex
	refID string
	host  string
	body  map[string]any
	list  []any
	ldCtx any
}

// New wraps value, which is either an IRI string, a JSON object or a JSON
// array, pinned to host.
func New(fetcher Fetcher, value any, host string) *Document {
	d := &Document{fetcher: fetcher}
	d.init(value, host)
	return d
}

func (d *Document) init(value any, host string) {
	switch v := value.(type) {
	case string:
		d.refID = v
		d.host = normalizedHost(v)
	case map[string]any:
		id, _ := v["id"].(string)
		if id == "" {
			d.body = v
			d.host = host
			d.ldCtx = v["@context"]
			return
		}

		d.host = normalizedHost(id)
		if host == AnyHost || host == d.host {
			d.body = v
			d.ldCtx = v["@context"]
		} else {
			// The embedded copy came from the wrong origin. Keep only the
			// reference and fetch the authoritative version on demand.
			d.refID = id
		}
	case []any:
		d.list = v
		d.host = host
	}
}

func normalizedHost(iri string) string {
	u, err := url.Parse(iri)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// child wraps a property value, inheriting this document's pin and context.
func (d *Document) child(value any) *Document {
	if value == nil {
		return nil
	}
	c := &Document{fetcher: d.fetcher, parent: d}
	c.init(value, d.host)
	return c
}

func (d *Document) load(ctx context.Context) (map[string]any, []any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.body != nil || d.list != nil {
		return d.body, d.list, nil
	}

	iri, err := url.Parse(d.refID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unparsable reference %q", federation.ErrFatal, d.refID)
	}

	body, err := d.fetcher.Get(ctx, iri)
	if err != nil {
		return nil, nil, err
	}
	if id, _ := body["id"].(string); id != "" && normalizedHost(id) != d.host {
		return nil, nil, fmt.Errorf("%w: document %s claims id %s", federation.ErrVerification, d.refID, id)
	}

	d.body = body
	d.ldCtx = body["@context"]
	return d.body, nil, nil
}

// ID returns the document's identifier without loading remote content.
func (d *Document) ID(ctx context.Context) (string, error) {
	d.mu.Lock()
	refID, body := d.refID, d.body
	d.mu.Unlock()

	if refID != "" {
		return refID, nil
	}
	if body != nil {
		if id, ok := body["id"].(string); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: id", federation.ErrMissingProperty)
}

// Host returns the origin host the document is pinned to.
func (d *Document) Host() string {
	return d.host
}

// Type returns the document's type names. A document may carry several.
func (d *Document) Type(ctx context.Context) ([]string, error) {
	body, _, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	switch t := body["type"].(type) {
	case string:
		return []string{t}, nil
	case []any:
		var types []string
		for _, entry := range t {
			if s, ok := entry.(string); ok {
				types = append(types, s)
			}
		}
		return types, nil
	default:
		return nil, fmt.Errorf("%w: type", federation.ErrMissingProperty)
	}
}

// HasType reports whether name is among the document's types.
func (d *Document) HasType(ctx context.Context, name string) (bool, error) {
	types, err := d.Type(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range types {
		if t == name {
			return true, nil
		}
	}
	return false, nil
}

func (d *Document) str(ctx context.Context, key string) (string, error) {
	body, _, err := d.load(ctx)
	if err != nil {
		return "", err
	}
	s, _ := body[key].(string)
	return s, nil
}

func (d *Document) obj(ctx context.Context, key string) (*Document, error) {
	body, _, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if body[key] == nil {
		return nil, nil
	}
	return d.child(body[key]), nil
}

func (d *Document) Actor(ctx context.Context) (*Document, error)        { return d.obj(ctx, "actor") }
func (d *Document) Object(ctx context.Context) (*Document, error)       { return d.obj(ctx, "object") }
func (d *Document) AttributedTo(ctx context.Context) (*Document, error) { return d.obj(ctx, "attributedTo") }
func (d *Document) InReplyTo(ctx context.Context) (*Document, error)    { return d.obj(ctx, "inReplyTo") }
func (d *Document) Owner(ctx context.Context) (*Document, error)        { return d.obj(ctx, "owner") }
func (d *Document) PublicKey(ctx context.Context) (*Document, error)    { return d.obj(ctx, "publicKey") }
func (d *Document) Inbox(ctx context.Context) (*Document, error)        { return d.obj(ctx, "inbox") }

func (d *Document) Content(ctx context.Context) (string, error) { return d.str(ctx, "content") }
func (d *Document) Name(ctx context.Context) (string, error)    { return d.str(ctx, "name") }
func (d *Document) Href(ctx context.Context) (string, error)    { return d.str(ctx, "href") }
func (d *Document) URL(ctx context.Context) (string, error)     { return d.str(ctx, "url") }

func (d *Document) PreferredUsername(ctx context.Context) (string, error) {
	return d.str(ctx, "preferredUsername")
}

func (d *Document) PublicKeyPem(ctx context.Context) (string, error) {
	return d.str(ctx, "publicKeyPem")
}

func (d *Document) MediaType(ctx context.Context) (string, error) {
	return d.str(ctx, "mediaType")
}

// Summary distinguishes an absent summary (nil) from a present one. A
// present empty string is preserved so callers can reject it.
func (d *Document) Summary(ctx context.Context) (*string, error) {
	body, _, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if s, ok := body["summary"].(string); ok {
		return &s, nil
	}
	return nil, nil
}

func (d *Document) Published(ctx context.Context) (time.Time, error) {
	s, err := d.str(ctx, "published")
	if err != nil || s == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// To returns the addressed recipients as plain references, never
// dereferenced. Audience checks only need the ids, and recipient
// collections are not this server's to fetch.
func (d *Document) To(ctx context.Context) ([]*Document, error) {
	body, _, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	switch to := body["to"].(type) {
	case nil:
		return nil, nil
	case []any:
		recipients := make([]*Document, 0, len(to))
		for _, entry := range to {
			recipients = append(recipients, d.child(entry))
		}
		return recipients, nil
	default:
		return []*Document{d.child(to)}, nil
	}
}

// Tag returns the note's tag entries, mentions and hashtags mixed.
func (d *Document) Tag(ctx context.Context) ([]*Document, error) {
	collection, err := d.obj(ctx, "tag")
	if err != nil || collection == nil {
		return nil, err
	}
	return collection.Items(ctx)
}

// Attachment returns the note's attached documents.
func (d *Document) Attachment(ctx context.Context) ([]*Document, error) {
	collection, err := d.obj(ctx, "attachment")
	if err != nil || collection == nil {
		return nil, err
	}
	return collection.Items(ctx)
}

// Items flattens the document into its members: a JSON array yields its
// entries, a Collection or OrderedCollection its items, and anything else
// yields the document itself.
func (d *Document) Items(ctx context.Context) ([]*Document, error) {
	body, list, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if list != nil {
		items := make([]*Document, 0, len(list))
		for _, entry := range list {
			items = append(items, d.child(entry))
		}
		return items, nil
	}

	types, err := d.Type(ctx)
	if err != nil && body["type"] != nil {
		return nil, err
	}
	for _, t := range types {
		var members any
		switch t {
		case "OrderedCollection":
			members = body["orderedItems"]
		case "Collection":
			members = body["items"]
		default:
			continue
		}
		if entries, ok := members.([]any); ok {
			items := make([]*Document, 0, len(entries))
			for _, entry := range entries {
				items = append(items, d.child(entry))
			}
			return items, nil
		}
		return []*Document{d.child(members)}, nil
	}
	return []*Document{d}, nil
}

// HasContext reports whether iri appears in the document's JSON-LD context,
// inherited from the parent when the document carries none of its own.
func (d *Document) HasContext(ctx context.Context, iri string) (bool, error) {
	if _, _, err := d.load(ctx); err != nil {
		return false, err
	}

	for doc := d; doc != nil; doc = doc.parent {
		doc.mu.Lock()
		ldCtx := doc.ldCtx
		doc.mu.Unlock()
		if ldCtx == nil {
			continue
		}

		switch c := ldCtx.(type) {
		case string:
			return c == iri, nil
		case []any:
			for _, entry := range c {
				if s, ok := entry.(string); ok && s == iri {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, nil
		}
	}
	return false, nil
}
