// Package registry is the external registry client Headwind's core
// consumes to enumerate tags and resolve digests for container-image
// slots (spec.md §4.4, §6). It wraps
// github.com/google/go-containerregistry exactly as the teacher's
// internal/cmd/controller/imagescan/tagscan_job.go does.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// DefaultTimeout is spec.md §5's default registry HTTP query deadline.
const DefaultTimeout = 30 * time.Second

// DockerConfigJSON is the well-known secret payload shape for
// kubernetes.io/dockerconfigjson credentials.
type DockerConfigJSON struct {
	Auths map[string]authn.AuthConfig `json:"auths"`
}

// Client enumerates tags and resolves digests for a single image
// repository.
type Client struct {
	Timeout time.Duration
}

func New() *Client {
	return &Client{Timeout: DefaultTimeout}
}

// CanonicalName normalizes a repository reference the same way the
// teacher's TagScanJob does (ref.Context().String()), so that e.g.
// "nginx" and "docker.io/library/nginx" resolve to the same slot (SPEC_FULL
// §7 "Canonical image name normalization").
func CanonicalName(repository string) (string, error) {
	ref, err := name.ParseReference(repository)
	if err != nil {
		return "", err
	}
	return ref.Context().String(), nil
}

// SplitImage parses a full image reference into its canonical repository
// and tag. Digest references have no tag and return ok=false, since
// Headwind's policy/version model compares tags (SPEC_FULL §7).
func SplitImage(image string) (repository, tag string, ok bool, err error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", "", false, fmt.Errorf("parsing image %q: %w", image, err)
	}
	t, isTag := ref.(name.Tag)
	if !isTag {
		return ref.Context().String(), "", false, nil
	}
	return t.Context().String(), t.TagStr(), true, nil
}

// ListTags lists every tag published for repository. auth may be nil for
// anonymous access.
func (c *Client) ListTags(ctx context.Context, repository string, auth authn.Authenticator) ([]string, error) {
	ref, err := name.ParseReference(repository)
	if err != nil {
		return nil, fmt.Errorf("parsing repository %q: %w", repository, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	opts := []remote.Option{remote.WithContext(ctx)}
	if auth != nil {
		opts = append(opts, remote.WithAuth(auth))
	}

	tags, err := remote.List(ref.Context(), opts...)
	if err != nil {
		return nil, fmt.Errorf("listing tags for %q: %w", repository, err)
	}
	return tags, nil
}

// Digest resolves the content digest of image:tag.
func (c *Client) Digest(ctx context.Context, imageRef string, auth authn.Authenticator) (string, error) {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	opts := []remote.Option{remote.WithContext(ctx)}
	if auth != nil {
		opts = append(opts, remote.WithAuth(auth))
	}

	img, err := remote.Image(ref, opts...)
	if err != nil {
		return "", err
	}
	d, err := img.Digest()
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// AuthFromDockerConfigJSON builds an Authenticator from a
// kubernetes.io/dockerconfigjson secret payload, mirroring the teacher's
// authFromSecret.
func AuthFromDockerConfigJSON(data []byte, registryHost string) (authn.Authenticator, error) {
	var cfg DockerConfigJSON
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return nil, err
	}
	auth, ok := cfg.Auths[registryHost]
	if !ok {
		return nil, fmt.Errorf("auth for %q not found in docker config", registryHost)
	}
	return authn.FromConfig(auth), nil
}
