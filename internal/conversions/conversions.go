package conversions

import (
	"context"
	"fmt"
	"net/url"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/domain"
)

var publicIRI, _ = url.Parse(config.PublicAudience)

// ActorURI returns the canonical URI of an actor: the locally minted one for
// local actors, the allocated one for remote actors.
func ActorURI(cfg config.Configuration, ctx context.Context, actor *domain.Actor) (*url.URL, error) {
	if actor.Local() {
		return domain.LocalActorURI(cfg.Url, actor.Username), nil
	}

	account, err := actor.Account.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	remote, ok := account.(*domain.RemoteAccount)
	if !ok {
		return nil, fmt.Errorf("actor %s has no remote account", actor.Acct())
	}
	return url.Parse(remote.URI.URI)
}

// StatusURI returns the URI a status is known under: its allocation when it
// arrived from outside, the locally minted one otherwise.
func StatusURI(cfg config.Configuration, ctx context.Context, status *domain.Status) (*url.URL, error) {
	if status.URI != nil {
		return url.Parse(status.URI.URI)
	}

	actor, err := status.Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return domain.LocalStatusURI(cfg.Url, actor.Acct(), status.ID), nil
}

// NoteToObject renders a note as an ActivityStreams Note. inReplyTo carries
// the parent's URI when the note is a reply, resolved by the caller.
func NoteToObject(cfg config.Configuration, ctx context.Context, note *domain.Note, inReplyTo string) (vocab.ActivityStreamsNote, error) {
	status := note.Status()
	actor, err := status.Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	o := streams.NewActivityStreamsNote()

	noteURI, err := StatusURI(cfg, ctx, status)
	if err != nil {
		return nil, err
	}
	id := streams.NewJSONLDIdProperty()
	id.SetIRI(noteURI)
	o.SetJSONLDId(id)

	published := streams.NewActivityStreamsPublishedProperty()
	published.Set(status.Published)
	o.SetActivityStreamsPublished(published)

	actorURI, err := ActorURI(cfg, ctx, actor)
	if err != nil {
		return nil, err
	}
	attributedTo := streams.NewActivityStreamsAttributedToProperty()
	attributedTo.AppendIRI(actorURI)
	o.SetActivityStreamsAttributedTo(attributedTo)

	to := streams.NewActivityStreamsToProperty()
	to.AppendIRI(publicIRI)
	o.SetActivityStreamsTo(to)

	if inReplyTo != "" {
		if iri, err := url.Parse(inReplyTo); err == nil {
			prop := streams.NewActivityStreamsInReplyToProperty()
			prop.AppendIRI(iri)
			o.SetActivityStreamsInReplyTo(prop)
		}
	}

	if note.Summary != nil {
		summary := streams.NewActivityStreamsSummaryProperty()
		summary.AppendXMLSchemaString(*note.Summary)
		o.SetActivityStreamsSummary(summary)
	}

	content := streams.NewActivityStreamsContentProperty()
	content.AppendXMLSchemaString(note.Content)
	o.SetActivityStreamsContent(content)

	attachments, err := note.Attachments.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(attachments) != 0 {
		prop := streams.NewActivityStreamsAttachmentProperty()
		for _, a := range attachments {
			doc, err := attachmentToDocument(a)
			if err != nil {
				return nil, err
			}
			prop.AppendActivityStreamsDocument(doc)
		}
		o.SetActivityStreamsAttachment(prop)
	}

	tag, err := tagProperty(cfg, ctx, note)
	if err != nil {
		return nil, err
	}
	if tag != nil {
		o.SetActivityStreamsTag(tag)
	}

	return o, nil
}

func attachmentToDocument(a domain.Attachment) (vocab.ActivityStreamsDocument, error) {
	doc := streams.NewActivityStreamsDocument()

	iri, err := url.Parse(a.URL)
	if err != nil {
		return nil, err
	}
	u := streams.NewActivityStreamsUrlProperty()
	u.AppendIRI(iri)
	doc.SetActivityStreamsUrl(u)

	if a.MediaType != "" {
		mt := streams.NewActivityStreamsMediaTypeProperty()
		mt.Set(a.MediaType)
		doc.SetActivityStreamsMediaType(mt)
	}
	return doc, nil
}

func tagProperty(cfg config.Configuration, ctx context.Context, note *domain.Note) (vocab.ActivityStreamsTagProperty, error) {
	hashtags, err := note.Hashtags.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	mentions, err := note.Mentions.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(hashtags) == 0 && len(mentions) == 0 {
		return nil, nil
	}

	tag := streams.NewActivityStreamsTagProperty()
	for _, name := range hashtags {
		hashtag := streams.NewTootHashtag()
		nameProp := streams.NewActivityStreamsNameProperty()
		nameProp.AppendXMLSchemaString("#" + name)
		hashtag.SetActivityStreamsName(nameProp)
		tag.AppendTootHashtag(hashtag)
	}
	for _, mentioned := range mentions {
		mention := streams.NewActivityStreamsMention()

		href, err := ActorURI(cfg, ctx, mentioned)
		if err != nil {
			return nil, err
		}
		hrefProp := streams.NewActivityStreamsHrefProperty()
		hrefProp.Set(href)
		mention.SetActivityStreamsHref(hrefProp)

		nameProp := streams.NewActivityStreamsNameProperty()
		nameProp.AppendXMLSchemaString("@" + mentioned.Acct())
		mention.SetActivityStreamsName(nameProp)
		tag.AppendActivityStreamsMention(mention)
	}
	return tag, nil
}

// NewCreate wraps a note object in a Create activity attributed to its
// author.
func NewCreate(cfg config.Configuration, ctx context.Context, note *domain.Note, inReplyTo string) (vocab.ActivityStreamsCreate, error) {
	object, err := NoteToObject(cfg, ctx, note, inReplyTo)
	if err != nil {
		return nil, err
	}

	noteURI := object.GetJSONLDId().Get()
	create := streams.NewActivityStreamsCreate()

	id := streams.NewJSONLDIdProperty()
	id.SetIRI(noteURI.JoinPath("create"))
	create.SetJSONLDId(id)

	actor := streams.NewActivityStreamsActorProperty()
	actor.AppendIRI(object.GetActivityStreamsAttributedTo().Begin().GetIRI())
	create.SetActivityStreamsActor(actor)

	to := streams.NewActivityStreamsToProperty()
	to.AppendIRI(publicIRI)
	create.SetActivityStreamsTo(to)

	objProp := streams.NewActivityStreamsObjectProperty()
	objProp.AppendActivityStreamsNote(object)
	create.SetActivityStreamsObject(objProp)

	return create, nil
}

// AnnounceToActivity renders an announce as its own activity; unlike a note
// it needs no Create wrapper.
func AnnounceToActivity(cfg config.Configuration, ctx context.Context, announce *domain.Announce) (vocab.ActivityStreamsAnnounce, error) {
	status := announce.Status()

	a := streams.NewActivityStreamsAnnounce()

	announceURI, err := StatusURI(cfg, ctx, status)
	if err != nil {
		return nil, err
	}
	id := streams.NewJSONLDIdProperty()
	id.SetIRI(announceURI)
	a.SetJSONLDId(id)

	actor, err := status.Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	actorURI, err := ActorURI(cfg, ctx, actor)
	if err != nil {
		return nil, err
	}
	actorProp := streams.NewActivityStreamsActorProperty()
	actorProp.AppendIRI(actorURI)
	a.SetActivityStreamsActor(actorProp)

	published := streams.NewActivityStreamsPublishedProperty()
	published.Set(status.Published)
	a.SetActivityStreamsPublished(published)

	object, err := announce.Object.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	objectURI, err := StatusURI(cfg, ctx, object.Status())
	if err != nil {
		return nil, err
	}
	objProp := streams.NewActivityStreamsObjectProperty()
	objProp.AppendIRI(objectURI)
	a.SetActivityStreamsObject(objProp)

	to := streams.NewActivityStreamsToProperty()
	to.AppendIRI(publicIRI)
	a.SetActivityStreamsTo(to)

	return a, nil
}

// FollowToActivity renders a follow with both ends as bare IRIs.
func FollowToActivity(cfg config.Configuration, ctx context.Context, follow *domain.Follow) (vocab.ActivityStreamsFollow, error) {
	f := streams.NewActivityStreamsFollow()

	actor, err := follow.Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	actorURI, err := ActorURI(cfg, ctx, actor)
	if err != nil {
		return nil, err
	}
	actorProp := streams.NewActivityStreamsActorProperty()
	actorProp.AppendIRI(actorURI)
	f.SetActivityStreamsActor(actorProp)

	object, err := follow.Object.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	objectURI, err := ActorURI(cfg, ctx, object)
	if err != nil {
		return nil, err
	}
	objProp := streams.NewActivityStreamsObjectProperty()
	objProp.AppendIRI(objectURI)
	f.SetActivityStreamsObject(objProp)

	return f, nil
}

// AcceptToActivity renders the confirmation of a follow, embedding the
// followed-back activity so the remote side can match it.
func AcceptToActivity(cfg config.Configuration, ctx context.Context, accept *domain.Accept) (vocab.ActivityStreamsAccept, error) {
	follow, err := accept.Object.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	followActivity, err := FollowToActivity(cfg, ctx, follow)
	if err != nil {
		return nil, err
	}

	a := streams.NewActivityStreamsAccept()

	actorProp := streams.NewActivityStreamsActorProperty()
	actorProp.AppendIRI(followActivity.GetActivityStreamsObject().Begin().GetIRI())
	a.SetActivityStreamsActor(actorProp)

	objProp := streams.NewActivityStreamsObjectProperty()
	objProp.AppendActivityStreamsFollow(followActivity)
	a.SetActivityStreamsObject(objProp)

	return a, nil
}

// LikeToActivity renders a like; the object is the liked status's URI.
func LikeToActivity(cfg config.Configuration, ctx context.Context, like *domain.Like) (vocab.ActivityStreamsLike, error) {
	l := streams.NewActivityStreamsLike()

	actor, err := like.Actor.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	actorURI, err := ActorURI(cfg, ctx, actor)
	if err != nil {
		return nil, err
	}
	actorProp := streams.NewActivityStreamsActorProperty()
	actorProp.AppendIRI(actorURI)
	l.SetActivityStreamsActor(actorProp)

	object, err := like.Object.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	objectURI, err := StatusURI(cfg, ctx, object.Status())
	if err != nil {
		return nil, err
	}
	objProp := streams.NewActivityStreamsObjectProperty()
	objProp.AppendIRI(objectURI)
	l.SetActivityStreamsObject(objProp)

	return l, nil
}

// Serialize renders an ActivityStreams value to a JSON-ready map, with the
// @context the serializer derives from the used vocabularies.
func Serialize(t vocab.Type) (map[string]any, error) {
	return streams.Serialize(t)
}
