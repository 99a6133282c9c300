// Package backend provides the query capability against MySQL backend
// servers used to fetch authentication data.
package backend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cast"

	"github.com/turtacn/guomen/common/errors"
	"github.com/turtacn/guomen/config"
)

// Value is one column value from a backend result row.
type Value struct {
	Str  string
	Null bool
}

// Row is one result row.
type Row []Value

// Querier is the minimal query surface the user loader needs from a
// backend server.
type Querier interface {
	// Query runs a statement and returns all result rows.
	Query(ctx context.Context, query string) ([]Row, error)
	// ServerVersion returns the backend's version string.
	ServerVersion(ctx context.Context) (string, error)
	// Address identifies the backend in logs and errors.
	Address() string
	// Close releases the underlying connections.
	Close() error
}

// Server is a Querier backed by a database/sql connection pool.
type Server struct {
	db   *sql.DB
	addr string
}

var _ Querier = (*Server)(nil)

// Connect prepares a connection pool for the given backend. The pool is
// lazy; the first query dials the server.
func Connect(bc config.BackendConfig, ac config.AuthConfig) (*Server, error) {
	cfg := dsnConfig(bc, ac)

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.ErrBackendUnreachable.New(cfg.Addr, err)
	}

	db := sql.OpenDB(connector)
	// One connection is enough: the loader runs its queries sequentially.
	db.SetMaxOpenConns(1)

	return &Server{db: db, addr: cfg.Addr}, nil
}

// dsnConfig translates proxy configuration into driver configuration.
func dsnConfig(bc config.BackendConfig, ac config.AuthConfig) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", bc.Host, bc.Port)
	cfg.User = bc.User
	cfg.Passwd = bc.Password
	cfg.Timeout = ac.ConnectTimeout
	cfg.ReadTimeout = ac.ReadTimeout
	cfg.WriteTimeout = ac.WriteTimeout
	return cfg
}

// Query runs a statement and returns all rows with NULLs preserved.
func (s *Server) Query(ctx context.Context, query string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.ErrQueryFailed.New(s.addr, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.ErrQueryFailed.New(s.addr, err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.ErrQueryFailed.New(s.addr, err)
		}

		row := make(Row, len(cols))
		for i, v := range vals {
			if v == nil {
				row[i] = Value{Null: true}
				continue
			}
			row[i] = Value{Str: cast.ToString(v)}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrQueryFailed.New(s.addr, err)
	}
	return out, nil
}

// ServerVersion returns the backend's reported version string.
func (s *Server) ServerVersion(ctx context.Context) (string, error) {
	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", errors.ErrBackendUnreachable.New(s.addr, err)
	}
	return version, nil
}

// Address identifies the backend in logs and errors.
func (s *Server) Address() string {
	return s.addr
}

// Close releases the connection pool.
func (s *Server) Close() error {
	return s.db.Close()
}
