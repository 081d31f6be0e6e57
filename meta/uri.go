package meta

import (
	"strings"

	"github.com/blockmeshdb/coordinator/errors"
)

const ErrCodeInvalidURI errors.Code = "InvalidURI"

// URI identifies a source location a table's template resolves
// against: a scheme (local/s3/gs/abfs) and a scheme-relative path.
type URI struct {
	Scheme string
	Path   string
}

// ParseURI parses a "scheme://path" string. A string with no "://"
// separator is treated as a bare local path, matching how most table
// templates in this codebase are written today, with no scheme prefix
// at all.
func ParseURI(s string) (URI, error) {
	if s == "" {
		return URI{}, errors.New(ErrCodeInvalidURI, "empty uri")
	}
	if i := strings.Index(s, "://"); i >= 0 {
		scheme := strings.ToLower(s[:i])
		path := s[i+3:]
		if scheme == "" || path == "" {
			return URI{}, errors.New(ErrCodeInvalidURI, "malformed uri: "+s)
		}
		return URI{Scheme: scheme, Path: path}, nil
	}
	return URI{Scheme: "local", Path: s}, nil
}

// String renders u back to its "scheme://path" form. Every URI
// carries an explicit scheme once parsed, so String always round
// trips: ParseURI(u.String()) yields u back unchanged.
func (u URI) String() string {
	return u.Scheme + "://" + u.Path
}
