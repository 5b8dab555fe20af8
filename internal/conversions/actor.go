package conversions

import (
	"context"
	"fmt"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/utils"
)

// LocalActorToPerson renders a local actor's public document, including the
// public half of its signing key.
func LocalActorToPerson(cfg config.Configuration, ctx context.Context, actor *domain.Actor) (vocab.ActivityStreamsPerson, error) {
	account, err := actor.Account.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	local, ok := account.(*domain.LocalAccount)
	if !ok {
		return nil, fmt.Errorf("actor %s is not local", actor.Acct())
	}

	publicKeyPem, err := utils.PublicKeyPemFromPrivate(local.PrivateKeyPem)
	if err != nil {
		return nil, err
	}

	p := streams.NewActivityStreamsPerson()

	actorURI := domain.LocalActorURI(cfg.Url, actor.Username)
	id := streams.NewJSONLDIdProperty()
	id.SetIRI(actorURI)
	p.SetJSONLDId(id)

	username := streams.NewActivityStreamsPreferredUsernameProperty()
	username.SetXMLSchemaString(actor.Username)
	p.SetActivityStreamsPreferredUsername(username)

	if actor.Name != "" {
		name := streams.NewActivityStreamsNameProperty()
		name.AppendXMLSchemaString(actor.Name)
		p.SetActivityStreamsName(name)
	}

	summary := streams.NewActivityStreamsSummaryProperty()
	summary.AppendXMLSchemaString(actor.Summary)
	p.SetActivityStreamsSummary(summary)

	inbox := streams.NewActivityStreamsInboxProperty()
	inbox.SetIRI(actorURI.JoinPath("inbox"))
	p.SetActivityStreamsInbox(inbox)

	outbox := streams.NewActivityStreamsOutboxProperty()
	outbox.SetIRI(actorURI.JoinPath("outbox"))
	p.SetActivityStreamsOutbox(outbox)

	keyProp := streams.NewW3IDSecurityV1PublicKeyProperty()
	key := streams.NewW3IDSecurityV1PublicKey()

	keyId := streams.NewJSONLDIdProperty()
	keyId.SetIRI(domain.LocalKeyURI(cfg.Url, actor.Username))
	key.SetJSONLDId(keyId)

	owner := streams.NewW3IDSecurityV1OwnerProperty()
	owner.SetIRI(actorURI)
	key.SetW3IDSecurityV1Owner(owner)

	keyPem := streams.NewW3IDSecurityV1PublicKeyPemProperty()
	keyPem.Set(publicKeyPem)
	key.SetW3IDSecurityV1PublicKeyPem(keyPem)

	keyProp.AppendW3IDSecurityV1PublicKey(key)
	p.SetW3IDSecurityV1PublicKey(keyProp)

	return p, nil
}
