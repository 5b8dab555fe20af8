package client

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/federation"
	"github.com/sidereusnuntius/feather/internal/utils"
	"github.com/sidereusnuntius/feather/internal/wellknown"
)

var prefs = []httpsig.Algorithm{httpsig.RSA_SHA256}
var getHeaders = []string{httpsig.RequestTarget, "date"}
var postHeaders = []string{httpsig.RequestTarget, "date", "digest"}

// HttpClient performs outbound federation traffic. Fetches are signed with
// the instance actor's key; deliveries are signed with the key of the local
// actor they happen on behalf of.
type HttpClient struct {
	config          config.Configuration
	client          *http.Client
	key             crypto.PrivateKey
	pubKeyId        *url.URL
	getSigner       httpsig.Signer
	getSignerMutex  sync.Mutex
	postSigner      httpsig.Signer
	postSignerMutex sync.Mutex
}

func New(config config.Configuration, client *http.Client, key crypto.PrivateKey, keyId *url.URL) (*HttpClient, error) {
	getSigner, _, err := httpsig.NewSigner(prefs, httpsig.DigestSha256, getHeaders, httpsig.Signature, 3600)
	if err != nil {
		return nil, err
	}

	postSigner, _, err := httpsig.NewSigner(prefs, httpsig.DigestSha256, postHeaders, httpsig.Signature, 3600)
	if err != nil {
		return nil, err
	}

	return &HttpClient{
		config:     config,
		client:     client,
		key:        key,
		pubKeyId:   keyId,
		getSigner:  getSigner,
		postSigner: postSigner,
	}, nil
}

// Get dereferences iri with a signed request and decodes the response body.
func (c *HttpClient) Get(ctx context.Context, iri *url.URL) (map[string]any, error) {
	res, err := c.Dereference(ctx, iri)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	decoder := json.NewDecoder(res.Body)
	var props map[string]any
	if err = decoder.Decode(&props); err != nil {
		log.Error().Err(err).Str("iri", iri.String()).Msg("response body unmarshaling error")
		return nil, err
	}
	return props, nil
}

func (c *HttpClient) Dereference(ctx context.Context, iri *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/activity+json")

	c.getSignerMutex.Lock()
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	err = c.getSigner.SignRequest(c.key, c.pubKeyId.String(), req, nil)
	c.getSignerMutex.Unlock()
	if err != nil {
		log.Error().Err(err).Msg("error while signing request")
		return nil, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", federation.ErrTemporary, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		content, _ := io.ReadAll(res.Body)
		res.Body.Close()
		log.Error().Str("status", res.Status).Bytes("response", content).Msg("fetch error")
		return nil, classify(res.StatusCode)
	}
	return res, nil
}

// Finger resolves resource against host's WebFinger endpoint. The request is
// not signed; the endpoint is public.
func (c *HttpClient) Finger(ctx context.Context, host, resource string) (*wellknown.WebfingerResponse, error) {
	endpoint := &url.URL{
		Scheme:   c.scheme(),
		Host:     host,
		Path:     "/.well-known/webfinger",
		RawQuery: url.Values{"resource": []string{resource}}.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/jrd+json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", federation.ErrTemporary, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return nil, classify(res.StatusCode)
	}

	var finger wellknown.WebfingerResponse
	if err = json.NewDecoder(res.Body).Decode(&finger); err != nil {
		return nil, err
	}
	return &finger, nil
}

// Deliver posts obj to the recipient inbox signed with the instance key.
func (c *HttpClient) Deliver(ctx context.Context, obj map[string]any, to *url.URL) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, to.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/activity+json")

	c.postSignerMutex.Lock()
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	err = c.postSigner.SignRequest(c.key, c.pubKeyId.String(), req, body)
	c.postSignerMutex.Unlock()
	if err != nil {
		return err
	}
	return c.do(req, body)
}

// DeliverAs posts obj to the recipient inbox signed with from's key. Falls
// back to the instance key when from has no local account.
func (c *HttpClient) DeliverAs(ctx context.Context, obj map[string]any, to *url.URL, from *domain.Actor) error {
	account, err := from.Account.Resolve(ctx)
	if err != nil {
		return err
	}
	local, ok := account.(*domain.LocalAccount)
	if !ok {
		return c.Deliver(ctx, obj, to)
	}

	key, err := utils.ParsePrivateKeyPem(local.PrivateKeyPem)
	if err != nil {
		log.Error().Err(err).Str("actor", from.Acct()).Msg("stored private key unreadable")
		return err
	}

	signer, _, err := httpsig.NewSigner(prefs, httpsig.DigestSha256, postHeaders, httpsig.Signature, 3600)
	if err != nil {
		return err
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, to.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	keyId := domain.LocalKeyURI(c.config.Url, from.Username)
	if err = signer.SignRequest(key, keyId.String(), req, body); err != nil {
		return err
	}
	return c.do(req, body)
}

func (c *HttpClient) do(req *http.Request, body []byte) error {
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", federation.ErrTemporary, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		response, _ := io.ReadAll(res.Body)
		log.Error().Int("code", res.StatusCode).Bytes("response body", response).Msg("delivery error")
		return classify(res.StatusCode)
	}
	return nil
}

func (c *HttpClient) scheme() string {
	if c.config.Https {
		return "https"
	}
	return "http"
}

// classify decides whether a peer's error status is worth retrying. Gone and
// not-found resources never come back; rate limits and server errors might.
func classify(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %d", federation.ErrTemporary, status)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %d", federation.ErrTemporary, status)
	default:
		return fmt.Errorf("%w: %d", federation.ErrFatal, status)
	}
}
