package sqlgen

import (
	"fmt"
	"strings"
)

// LimitStyle selects how a pagination window is rendered for selects.
type LimitStyle int

const (
	// LimitStartLength renders LIMIT <start>, <length>.
	LimitStartLength LimitStyle = iota
	// LimitOffset renders LIMIT <length> OFFSET <start>.
	LimitOffset
	// LimitLengthOnly renders LIMIT <length> and ignores the start.
	LimitLengthOnly
)

// Dialect holds the quoting and escaping rules of one SQL flavour.
type Dialect struct {
	Name        string
	IdentQuote  string
	StringQuote string
	Escape      func(string) string
	Limit       LimitStyle
}

var (
	MySQL = Dialect{
		Name:        "mysql",
		IdentQuote:  "`",
		StringQuote: "'",
		Escape:      AddSlashes,
		Limit:       LimitStartLength,
	}

	SQLite = Dialect{
		Name:        "sqlite",
		IdentQuote:  "`",
		StringQuote: "'",
		Escape:      DoubleQuotes,
		Limit:       LimitStartLength,
	}

	Postgres = Dialect{
		Name:        "postgres",
		IdentQuote:  `"`,
		StringQuote: "'",
		Escape:      DoubleQuotes,
		Limit:       LimitOffset,
	}

	// CQL is the Cassandra query language: bare identifiers and no offsets.
	CQL = Dialect{
		Name:        "cql",
		IdentQuote:  "",
		StringQuote: "'",
		Escape:      DoubleQuotes,
		Limit:       LimitLengthOnly,
	}
)

// DialectByName returns one of the predefined dialects.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "cql", "cassandra":
		return CQL, nil
	default:
		return Dialect{}, fmt.Errorf("unknown SQL dialect %q", name)
	}
}

var addSlashesReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`, "\x00", `\0`)

// AddSlashes backslash-escapes quotes, backslashes and NUL bytes.
func AddSlashes(s string) string {
	return addSlashesReplacer.Replace(s)
}

// DoubleQuotes escapes single quotes by doubling them.
func DoubleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
