package auth

import (
	"net"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/turtacn/guomen/common/log"
)

// ResultKind classifies the outcome of an authentication attempt.
type ResultKind int

const (
	// AuthOK admits the connection.
	AuthOK ResultKind = iota
	// AuthBadPassword means a grant row matched but the challenge
	// response did not verify.
	AuthBadPassword
	// AuthUnknownUser means no grant row matched the client.
	AuthUnknownUser
	// AuthNoSuchDatabase means the credential verified but the requested
	// database is not known.
	AuthNoSuchDatabase
)

func (k ResultKind) String() string {
	switch k {
	case AuthOK:
		return "ok"
	case AuthBadPassword:
		return "bad_password"
	case AuthUnknownUser:
		return "unknown_user"
	case AuthNoSuchDatabase:
		return "no_such_database"
	}
	return "unknown"
}

// Request carries one client handshake to be authenticated.
type Request struct {
	User     string
	ClientIP net.IP
	Database string
	// Token is the client's 20-byte challenge response, or empty for a
	// passwordless attempt.
	Token []byte
	// Scramble is the 20-byte nonce issued in the server greeting.
	Scramble []byte
}

// Result is the structured outcome of an authentication attempt. It is a
// value, not an error: the caller maps it to the matching MySQL packet.
type Result struct {
	Kind ResultKind
	// PasswordSHA1 is SHA1(password), emitted on success so the proxy can
	// replay the handshake against the backend.
	PasswordSHA1 []byte
	// UsedPassword reports whether the client supplied a token, for the
	// canonical "Using password: YES/NO" error message.
	UsedPassword bool
}

// Resolver is the reverse-DNS capability the authenticator consumes.
type Resolver interface {
	ReverseLookup(ip net.IP) (string, error)
}

// DNSResolver resolves through the OS resolver. Lookups block; they are
// bounded only by the resolver's own timeouts.
type DNSResolver struct{}

// ReverseLookup returns the first PTR name for the address, without the
// trailing dot.
func (DNSResolver) ReverseLookup(ip net.IP) (string, error) {
	names, err := net.LookupAddr(ip.String())
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// CachingResolver wraps a Resolver with a bounded LRU cache keyed by
// address. Failed lookups are cached as empty names so a slow resolver is
// consulted once per address.
type CachingResolver struct {
	inner Resolver
	cache *lru.Cache
}

// NewCachingResolver builds a caching resolver of the given capacity.
func NewCachingResolver(inner Resolver, size int) (*CachingResolver, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingResolver{inner: inner, cache: cache}, nil
}

// ReverseLookup implements Resolver.
func (r *CachingResolver) ReverseLookup(ip net.IP) (string, error) {
	key := ip.String()
	if name, ok := r.cache.Get(key); ok {
		return name.(string), nil
	}
	name, err := r.inner.ReverseLookup(ip)
	if err != nil {
		name = ""
	}
	r.cache.Add(key, name)
	return name, err
}

// Authenticator verifies client handshakes against the current catalog
// snapshot.
type Authenticator struct {
	// snapshot returns the catalog visible to this authentication; the
	// loader swaps it underneath without blocking readers.
	snapshot func() *Catalog
	resolver Resolver
	// hostnameFallback enables the reverse-DNS retry for clients that no
	// numeric or wildcard pattern matched.
	hostnameFallback bool
	log              log.Logger
}

// NewAuthenticator builds an authenticator over a snapshot accessor. The
// resolver may be nil when the hostname fallback is disabled.
func NewAuthenticator(snapshot func() *Catalog, resolver Resolver, hostnameFallback bool) *Authenticator {
	return &Authenticator{
		snapshot:         snapshot,
		resolver:         resolver,
		hostnameFallback: hostnameFallback,
		log:              log.Component("auth"),
	}
}

// Authenticate runs one handshake against the catalog: find the grant row
// for (user, address, database), verify the challenge response, and confirm
// the requested database exists.
func (a *Authenticator) Authenticate(req Request) Result {
	usedPassword := len(req.Token) > 0

	catalog := a.snapshot()
	if catalog == nil {
		return Result{Kind: AuthUnknownUser, UsedPassword: usedPassword}
	}

	stored, matched := catalog.Lookup(req.User, req.ClientIP, req.Database, "")
	if !matched && a.hostnameFallback && a.resolver != nil {
		// The lookup blocks on the resolver; the host budgets for this.
		hostname, err := a.resolver.ReverseLookup(req.ClientIP)
		if err != nil {
			a.log.WithError(err).Debugf("reverse lookup failed for %s", req.ClientIP)
		}
		if hostname != "" {
			stored, matched = catalog.Lookup(req.User, req.ClientIP, req.Database, hostname)
		}
	}
	if !matched {
		return Result{Kind: AuthUnknownUser, UsedPassword: usedPassword}
	}

	ok, passwordSHA1 := CheckScramble(stored, req.Token, req.Scramble)
	if !ok {
		return Result{Kind: AuthBadPassword, UsedPassword: usedPassword}
	}

	if req.Database != "" && !catalog.DatabaseExists(req.Database) {
		return Result{Kind: AuthNoSuchDatabase, UsedPassword: usedPassword}
	}

	return Result{Kind: AuthOK, PasswordSHA1: passwordSHA1, UsedPassword: usedPassword}
}
