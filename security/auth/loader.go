package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/turtacn/guomen/backend"
	"github.com/turtacn/guomen/common/errors"
	"github.com/turtacn/guomen/common/log"
	"github.com/turtacn/guomen/config"
)

const (
	// The two halves of the grant query join mysql.user with the
	// database-level and table-level grant tables. The password column is
	// authentication_string on 5.7 servers and password everywhere else.
	grantQueryFormat = `SELECT u.user, u.host, d.db, u.select_priv, u.%[1]s
  FROM mysql.user AS u LEFT JOIN mysql.db AS d
    ON (u.user=d.user AND u.host=d.host) %[2]s
UNION
SELECT u.user, u.host, t.db, u.select_priv, u.%[1]s
  FROM mysql.user AS u LEFT JOIN mysql.tables_priv AS t
    ON (u.user=t.user AND u.host=t.host) %[2]s`

	// usersOnlyQueryFormat serves backends where the service account can
	// read mysql.user but not the grant tables. Database-name enforcement
	// degrades to global grants.
	usersOnlyQueryFormat = `SELECT u.user, u.host, NULL, u.select_priv, u.%s FROM mysql.user AS u %s`

	rootFilter = `WHERE u.user NOT IN ('root')`

	showDatabasesQuery = `SHOW DATABASES`
)

// Sanity queries verifying the service account can read the grant tables.
const (
	checkUsersQuery      = `SELECT user, host FROM mysql.user LIMIT 1`
	checkDbQuery         = `SELECT user, host, db FROM mysql.db LIMIT 1`
	checkTablesPrivQuery = `SELECT user, host, db FROM mysql.tables_priv LIMIT 1`
)

// Loader fetches grant data from the configured backends and builds a new
// catalog. It never mutates a catalog that is already visible to readers.
type Loader struct {
	cfg      config.AuthConfig
	backends []backend.Querier
	log      log.Logger

	// permission checks run once per backend, before the first load.
	checked map[string]bool
}

// NewLoader creates a loader over an ordered list of backend servers.
func NewLoader(cfg config.AuthConfig, backends []backend.Querier) *Loader {
	return &Loader{
		cfg:      cfg,
		backends: backends,
		log:      log.Component("userload"),
		checked:  make(map[string]bool),
	}
}

// Load builds a catalog from the backends. With users_from_all unset it
// stops at the first server that returned any users; otherwise it unions
// every server's rows. Per-server failures are collected; the load succeeds
// if at least one server yielded users. Cancelling the context between
// servers or between row insertions discards the partial batch.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	if len(l.backends) == 0 {
		return nil, errors.ErrNoBackends.New()
	}

	catalog := NewCatalog()
	var failures []error
	loadedAny := false

	for _, server := range l.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		count, err := l.loadServer(ctx, server, catalog)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.log.WithError(err).Warnf("skipping backend %s", server.Address())
			failures = append(failures, err)
			continue
		}

		l.log.Infof("loaded %d user entries from %s", count, server.Address())
		if count > 0 {
			loadedAny = true
			if !l.cfg.UsersFromAll {
				break
			}
		}
	}

	if !loadedAny {
		if len(failures) > 0 {
			return nil, errors.ErrNoUsersLoaded.Wrap(joinErrors(failures))
		}
		return nil, errors.ErrNoUsersLoaded.New()
	}
	return catalog, nil
}

// loadServer runs the grant and database queries against one backend and
// inserts the result into the catalog. It returns how many rows this server
// contributed.
func (l *Loader) loadServer(ctx context.Context, server backend.Querier, catalog *Catalog) (int, error) {
	addr := server.Address()

	dbGrants := true
	if !l.cfg.SkipPermissionChecks && !l.checked[addr] {
		var err error
		dbGrants, err = l.checkPermissions(ctx, server)
		if err != nil {
			return 0, err
		}
		l.checked[addr] = true
	}

	version, err := server.ServerVersion(ctx)
	if err != nil {
		return 0, err
	}
	pwColumn := passwordColumn(version)
	l.log.Debugf("backend %s reports version %q, password column %s", addr, version, pwColumn)

	filter := ""
	if !l.cfg.EnableRoot {
		filter = rootFilter
	}
	query := fmt.Sprintf(grantQueryFormat, pwColumn, filter)
	if !dbGrants {
		query = fmt.Sprintf(usersOnlyQueryFormat, pwColumn, filter)
	}

	rows, err := server.Query(ctx, query)
	if err != nil {
		return 0, err
	}

	dbRows, err := server.Query(ctx, showDatabasesQuery)
	if err != nil {
		return 0, err
	}
	for _, row := range dbRows {
		if len(row) > 0 && !row[0].Null {
			catalog.AddDatabase(row[0].Str)
		}
	}

	count := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := l.insertGrantRow(catalog, row)
		if err != nil {
			l.log.WithError(err).Warnf("skipping grant row from %s", addr)
			continue
		}
		count += n
	}
	return count, nil
}

// insertGrantRow canonicalizes one (user, host, db, select_priv, password)
// result row and inserts it, expanding database wildcards against the
// known-database set. It returns the number of catalog rows inserted.
func (l *Loader) insertGrantRow(catalog *Catalog, row backend.Row) (int, error) {
	if len(row) < 5 {
		return 0, errors.ErrParseFailed.New(fmt.Sprintf("%v", row))
	}

	user := row[0].Str
	host, err := ParseHostPattern(row[1].Str)
	if err != nil {
		return 0, err
	}

	password := ""
	if !row[4].Null {
		password = StripPasswordHash(row[4].Str)
	}

	anyDb := strings.EqualFold(row[3].Str, "Y")

	if row[2].Null {
		// No database-level grant recorded. A global SELECT still admits
		// every database; otherwise the row denies any named database.
		if !catalog.Add(&GrantRow{User: user, Host: host, AnyDb: anyDb, Password: password}) {
			return 0, nil
		}
		return 1, nil
	}

	db := row[2].Str
	if l.cfg.StripDbEsc {
		db = strings.ReplaceAll(db, `\`, "")
	}

	if !strings.ContainsRune(db, '%') {
		if !catalog.Add(&GrantRow{User: user, Host: host, Db: db, Password: password}) {
			return 0, nil
		}
		return 1, nil
	}

	// Expand the database wildcard into one literal row per known
	// database, case-insensitively.
	pattern, err := regexp.Compile(`(?i)^` + strings.ReplaceAll(regexp.QuoteMeta(db), "%", ".*") + `$`)
	if err != nil {
		return 0, errors.ErrParseFailed.New(db)
	}

	count := 0
	for _, name := range catalog.Databases() {
		if pattern.MatchString(name) && catalog.Add(&GrantRow{User: user, Host: host, Db: name, Password: password}) {
			count++
		}
	}
	return count, nil
}

// checkPermissions verifies the service account can read the grant tables.
// Missing access to mysql.user is fatal for the server; missing access to
// mysql.db or mysql.tables_priv degrades database-name enforcement and
// returns false.
func (l *Loader) checkPermissions(ctx context.Context, server backend.Querier) (bool, error) {
	if _, err := server.Query(ctx, checkUsersQuery); err != nil {
		return false, errors.ErrPermissionsMissing.Wrap(err, "mysql.user")
	}

	dbGrants := true
	if _, err := server.Query(ctx, checkDbQuery); err != nil {
		l.log.WithError(err).Warnf("cannot read mysql.db on %s, database grants degraded", server.Address())
		dbGrants = false
	}
	if _, err := server.Query(ctx, checkTablesPrivQuery); err != nil {
		l.log.WithError(err).Warnf("cannot read mysql.tables_priv on %s, table grants degraded", server.Address())
		dbGrants = false
	}
	return dbGrants, nil
}

// passwordColumn selects the mysql.user password column for a server
// version: 5.7 renamed it to authentication_string.
func passwordColumn(version string) string {
	if strings.Contains(version, "5.7.") {
		return "authentication_string"
	}
	return "password"
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
