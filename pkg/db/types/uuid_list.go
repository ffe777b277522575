package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDList stores a set of ids as a Postgres array literal ({a,b}). The same
// text form is kept in a TEXT column on sqlite.
type UUIDList []uuid.UUID

func (l *UUIDList) Scan(src any) error {
	if src == nil {
		*l = UUIDList{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return l.parseFromString(v)
	case []byte:
		return l.parseFromString(string(v))
	default:
		return fmt.Errorf("UUIDList: unsupported Scan type %T", src)
	}
}

func (l UUIDList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "{}", nil
	}
	return "{" + strings.Join(l.Strings(), ",") + "}", nil
}

// Contains reports whether id is part of the list.
func (l UUIDList) Contains(id uuid.UUID) bool {
	for _, candidate := range l {
		if candidate == id {
			return true
		}
	}
	return false
}

func (l UUIDList) Strings() []string {
	out := make([]string, 0, len(l))
	for _, id := range l {
		out = append(out, id.String())
	}
	return out
}

func (l *UUIDList) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if strings.TrimSpace(s) == "" {
		*l = UUIDList{}
		return nil
	}

	raw := strings.Split(s, ",")
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(strings.Trim(r, `"`))
		id, err := uuid.Parse(r)
		if err != nil {
			return fmt.Errorf("UUIDList: parse %q: %w", r, err)
		}
		out = append(out, id)
	}
	*l = UUIDList(out)
	return nil
}
