// Package cloudhost resolves render servers running on cloud instances.
// A reference of the form gce://project/zone/instance[:port] resolves to
// the instance's external IP; anything else is returned unchanged.
package cloudhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-xrstream/internal/httpc"
)

// Scheme prefixes a Compute Engine instance reference.
const Scheme = "gce://"

var (
	// ErrBadRef is returned for a malformed instance reference.
	ErrBadRef = errors.New("cloudhost: malformed instance reference")

	// ErrNoExternalIP is returned when the instance has no public address.
	ErrNoExternalIP = errors.New("cloudhost: instance has no external IP")

	// ErrNotRunning is returned when the instance is not running.
	ErrNotRunning = errors.New("cloudhost: instance not running")
)

// Ref identifies a Compute Engine instance.
type Ref struct {
	Project  string
	Zone     string
	Instance string
	Port     string
}

func (r Ref) String() string {
	s := Scheme + r.Project + "/" + r.Zone + "/" + r.Instance
	if r.Port != "" {
		s += ":" + r.Port
	}
	return s
}

// ParseRef parses a gce:// reference. ok is false for plain addresses.
func ParseRef(s string) (ref Ref, ok bool, err error) {
	rest, found := strings.CutPrefix(s, Scheme)
	if !found {
		return Ref{}, false, nil
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return Ref{}, true, fmt.Errorf("%w: %q", ErrBadRef, s)
	}
	ref = Ref{Project: parts[0], Zone: parts[1], Instance: parts[2]}
	if name, port, found := strings.Cut(ref.Instance, ":"); found {
		ref.Instance, ref.Port = name, port
	}
	if ref.Project == "" || ref.Zone == "" || ref.Instance == "" {
		return Ref{}, true, fmt.Errorf("%w: %q", ErrBadRef, s)
	}
	return ref, true, nil
}

// Lookup fetches an instance description.
type Lookup interface {
	Instance(ctx context.Context, ref Ref) (*compute.Instance, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup replaces the Compute Engine API client.
func WithLookup(l Lookup) Option {
	return func(r *Resolver) {
		r.lookup = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver turns server references into dialable addresses. The Compute
// Engine client is created on first use with application default
// credentials.
type Resolver struct {
	mu     sync.Mutex
	lookup Lookup
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the address for ref.
func (r *Resolver) Resolve(ctx context.Context, s string) (string, error) {
	ref, ok, err := ParseRef(s)
	if err != nil {
		return "", err
	}
	if !ok {
		return s, nil
	}

	l, err := r.client(ctx)
	if err != nil {
		return "", err
	}
	inst, err := l.Instance(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("get instance %s: %w", ref, err)
	}
	ip, err := ExternalIP(inst)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ref, err)
	}
	r.logger.Info("resolved cloud render server", "ref", ref.String(), "ip", ip)

	if ref.Port != "" {
		return net.JoinHostPort(ip, ref.Port), nil
	}
	return ip, nil
}

func (r *Resolver) client(ctx context.Context) (Lookup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookup != nil {
		return r.lookup, nil
	}

	// tokens outlive this call, so they must not inherit its deadline
	base := httpc.Context(context.Background())
	ts, err := google.DefaultTokenSource(base, compute.ComputeReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	svc, err := compute.NewService(ctx, option.WithHTTPClient(httpc.Authorized(base, ts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}
	r.lookup = &computeLookup{svc: svc}
	return r.lookup, nil
}

type computeLookup struct {
	svc *compute.Service
}

func (c *computeLookup) Instance(ctx context.Context, ref Ref) (*compute.Instance, error) {
	return c.svc.Instances.Get(ref.Project, ref.Zone, ref.Instance).Context(ctx).Do()
}

// ExternalIP returns the first NAT address of a running instance.
func ExternalIP(inst *compute.Instance) (string, error) {
	if inst.Status != "RUNNING" {
		return "", fmt.Errorf("%w: status %s", ErrNotRunning, inst.Status)
	}
	for _, ni := range inst.NetworkInterfaces {
		for _, ac := range ni.AccessConfigs {
			if ac.NatIP != "" {
				return ac.NatIP, nil
			}
		}
	}
	return "", ErrNoExternalIP
}
