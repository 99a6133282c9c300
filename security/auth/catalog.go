package auth

import (
	"net"
	"sort"
	"time"

	"github.com/mitchellh/hashstructure"
)

// GrantRow is one authorization record: it admits connections for one user
// from one host shape, optionally restricted to one database.
type GrantRow struct {
	// User is the account name. Empty marks the anonymous-user sentinel.
	User string
	// Host is the canonical host pattern.
	Host HostPattern
	// Db is the exact database name this grant covers. Wildcards are
	// expanded at load time; the catalog holds literals only.
	Db string
	// AnyDb marks a global grant: every database is accepted. When both
	// AnyDb is false and Db is empty, no database grant was recorded and
	// the row denies any connection that names a database.
	AnyDb bool
	// Password is the hex double-SHA1 from mysql.user without the leading
	// '*', or empty for passwordless accounts.
	Password string
}

// rowKey is the identity of a grant row inside a catalog.
type rowKey struct {
	User  string
	Host  string
	Db    string
	AnyDb bool
}

func (r *GrantRow) key() rowKey {
	return rowKey{User: r.User, Host: r.Host.String(), Db: r.Db, AnyDb: r.AnyDb}
}

// hash returns a structural hash over the full compound key.
func (k rowKey) hash() uint64 {
	h, err := hashstructure.Hash(k, nil)
	if err != nil {
		// hashstructure cannot fail on a struct of strings and bools.
		panic(err)
	}
	return h
}

// admits applies the database rule: an empty request matches every row, a
// named database needs a global grant or an exact match, and a row without
// any database grant denies.
func (r *GrantRow) admits(db string) bool {
	if db == "" {
		return true
	}
	if r.AnyDb {
		return true
	}
	return r.Db != "" && r.Db == db
}

// Catalog is an immutable snapshot of the grant rows and known database
// names of one listener. It is built by the loader, swapped in atomically,
// and read concurrently without locks.
type Catalog struct {
	rows      []*GrantRow
	users     map[string][]*GrantRow
	seen      map[uint64]struct{}
	databases map[string]struct{}

	// anonymous records whether an empty-user row appeared at load time.
	// Its presence disables the synthesis of a localhost row for
	// wildcard-host matches at session setup.
	anonymous bool

	builtAt time.Time
}

// NewCatalog returns an empty catalog ready to be populated by the loader.
func NewCatalog() *Catalog {
	return &Catalog{
		users:     make(map[string][]*GrantRow),
		seen:      make(map[uint64]struct{}),
		databases: make(map[string]struct{}),
		builtAt:   time.Now(),
	}
}

// Add inserts a grant row, preserving insertion order per user. Duplicate
// (user, host, database) keys are dropped and reported as false.
func (c *Catalog) Add(row *GrantRow) bool {
	h := row.key().hash()
	if _, dup := c.seen[h]; dup {
		return false
	}
	c.seen[h] = struct{}{}
	c.rows = append(c.rows, row)
	c.users[row.User] = append(c.users[row.User], row)
	if row.User == "" {
		c.anonymous = true
	}
	return true
}

// AddDatabase records a known database name.
func (c *Catalog) AddDatabase(name string) {
	c.databases[name] = struct{}{}
}

// Len returns the number of grant rows.
func (c *Catalog) Len() int {
	return len(c.rows)
}

// Rows returns the grant rows in insertion order.
func (c *Catalog) Rows() []*GrantRow {
	return c.rows
}

// Databases returns the known database names, sorted.
func (c *Catalog) Databases() []string {
	names := make([]string, 0, len(c.databases))
	for name := range c.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatabaseExists reports whether a database name was present at load time.
func (c *Catalog) DatabaseExists(name string) bool {
	_, ok := c.databases[name]
	return ok
}

// LocalhostMatchWildcardHost reports whether a literal localhost row may be
// synthesized for wildcard host matches. It is false when an anonymous user
// row was loaded.
func (c *Catalog) LocalhostMatchWildcardHost() bool {
	return !c.anonymous
}

// BuiltAt returns when this snapshot was populated.
func (c *Catalog) BuiltAt() time.Time {
	return c.builtAt
}

// Lookup finds the grant row matching a client. Host matching tries the
// numeric prefixes first, then single-character wildcard patterns against
// the dotted address, then host name patterns against the resolved client
// name. Among numeric matches the longest prefix wins; on equal prefixes a
// row naming the requested database beats a global grant, and insertion
// order breaks remaining ties.
//
// Lookup never errors: an unmatched credential is simply absent.
func (c *Catalog) Lookup(user string, clientIP net.IP, db, hostname string) (string, bool) {
	rows := c.users[user]
	if len(rows) == 0 {
		return "", false
	}

	ip, ok := IPv4ToUint(clientIP)
	if !ok {
		return "", false
	}

	var best *GrantRow
	bestBits := -1
	bestNamed := false
	for _, r := range rows {
		if !r.Host.MatchAddr(ip) || !r.admits(db) {
			continue
		}
		bits := int(r.Host.Bits)
		named := !r.AnyDb && r.Db != ""
		if bits > bestBits || (bits == bestBits && named && !bestNamed) {
			best, bestBits, bestNamed = r, bits, named
		}
	}
	if best != nil {
		return best.Password, true
	}

	dotted := clientIP.To4().String()
	for _, r := range rows {
		if r.Host.MatchSingleChar(dotted) && r.admits(db) {
			return r.Password, true
		}
	}

	if hostname != "" {
		for _, r := range rows {
			if r.Host.MatchHostname(hostname) && r.admits(db) {
				return r.Password, true
			}
		}
	}

	return "", false
}
