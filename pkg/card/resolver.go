package card

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/morezero/agent-orchestrator/pkg/semver"
)

const (
	resolverLogPrefix = "card:resolver"
	maxCardBytes      = 1 << 20
	defaultTimeout    = 10 * time.Second
)

// Resolver fetches a descriptor from a discovery address.
type Resolver interface {
	Resolve(ctx context.Context, address string) (*Descriptor, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, address string) (*Descriptor, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, address string) (*Descriptor, error) {
	return f(ctx, address)
}

// HTTPResolver fetches cards over HTTP(S). It performs a single attempt; retries
// belong to the caller.
type HTTPResolver struct {
	client     *http.Client
	path       string
	constraint *semver.Constraint
}

// HTTPResolverParams holds parameters for NewHTTPResolver. Zero values use defaults.
type HTTPResolverParams struct {
	Client     *http.Client
	Path       string
	Timeout    time.Duration
	Constraint *semver.Constraint
}

// NewHTTPResolver creates an HTTPResolver.
func NewHTTPResolver(params HTTPResolverParams) *HTTPResolver {
	client := params.Client
	if client == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	path := params.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &HTTPResolver{client: client, path: path, constraint: params.Constraint}
}

// CardURL returns the URL the card for address is fetched from.
func (r *HTTPResolver) CardURL(address string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + r.path
	return u.String(), nil
}

// Resolve fetches and validates the card published at address.
func (r *HTTPResolver) Resolve(ctx context.Context, address string) (*Descriptor, error) {
	cardURL, err := r.CardURL(address)
	if err != nil {
		return nil, &AddressUnreachableError{Address: address, Err: err}
	}

	slog.Debug(fmt.Sprintf("%s - GET %s", resolverLogPrefix, cardURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, &AddressUnreachableError{Address: address, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &AddressUnreachableError{Address: address, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AddressUnreachableError{Address: address, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCardBytes+1))
	if err != nil {
		return nil, &AddressUnreachableError{Address: address, Err: err}
	}
	if len(body) > maxCardBytes {
		return nil, &MalformedDescriptorError{Address: address, Reason: "card exceeds 1 MiB"}
	}

	return r.parse(address, body)
}

func (r *HTTPResolver) parse(address string, body []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, &MalformedDescriptorError{Address: address, Reason: "invalid JSON", Err: err}
	}
	if err := Validate(&d); err != nil {
		return nil, &MalformedDescriptorError{Address: address, Reason: err.Error()}
	}
	if err := r.constraint.Check(d.Version); err != nil {
		return nil, &MalformedDescriptorError{Address: address, Reason: "incompatible version", Err: err}
	}
	d.Address = address
	return &d, nil
}

// Validate checks the fields the orchestrator depends on.
func Validate(d *Descriptor) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(d.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q is not an absolute http(s) URL", d.URL)
	}
	return nil
}
