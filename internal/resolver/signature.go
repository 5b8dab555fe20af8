package resolver

import (
	"context"
	"fmt"
	"net/http"

	"code.superseriousbusiness.org/httpsig"

	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
	"github.com/sidereusnuntius/feather/internal/utils"
)

// VerifyRequest checks the HTTP signature of an inbound request and returns
// the signing actor. The keyId is resolved through ActorByKeyURI, so an
// unknown signer triggers discovery before the signature is checked.
func (r *Resolver) VerifyRequest(ctx context.Context, req *http.Request) (*domain.Actor, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", federation.ErrVerification, err)
	}

	actor, err := r.ActorByKeyURI(ctx, verifier.KeyId())
	if err != nil {
		return nil, err
	}

	account, err := remoteAccount(ctx, actor)
	if err != nil {
		return nil, err
	}

	key, err := utils.ParsePublicKeyPem(account.PublicKeyPem)
	if err != nil {
		return nil, err
	}

	if err = verifier.Verify(key, httpsig.RSA_SHA256); err != nil {
		return nil, fmt.Errorf("%w: %v", federation.ErrVerification, err)
	}
	return actor, nil
}
