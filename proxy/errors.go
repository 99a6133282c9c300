package proxy

import (
	"net"

	"github.com/dolthub/vitess/go/mysql"

	"github.com/turtacn/guomen/security/auth"
)

// MySQL error code constants
// Reference: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	// ERAccessDeniedError - Access denied for user
	ERAccessDeniedError = 1045
	// ERBadDB - Unknown database
	ERBadDB = 1049
)

// SQL State constants
const (
	// SSAccessDenied - Access denied
	SSAccessDenied = "28000"
	// SSClientError - Client error
	SSClientError = "42000"
)

// MySQLError translates an authentication result into the error packet the
// proxy sends to the client. A successful result yields nil.
func MySQLError(req auth.Request, res auth.Result) error {
	switch res.Kind {
	case auth.AuthOK:
		return nil
	case auth.AuthNoSuchDatabase:
		return mysql.NewSQLError(ERBadDB, SSClientError, "Unknown database '%s'", req.Database)
	default:
		return mysql.NewSQLError(ERAccessDeniedError, SSAccessDenied,
			"Access denied for user '%s'@'%s' (using password: %s)",
			req.User, clientHost(req.ClientIP), yesNo(res.UsedPassword))
	}
}

func clientHost(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
