package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// ChainID is a nullable on-chain identifier stored as decimal text, since
// contract ids are unsigned and may exceed a signed BIGINT.
type ChainID struct {
	Uint64 uint64
	Valid  bool
}

// NewChainID wraps id; a nil id is NULL.
func NewChainID(id *uint64) ChainID {
	if id == nil {
		return ChainID{}
	}
	return ChainID{Uint64: *id, Valid: true}
}

// Ptr returns the id or nil when NULL.
func (c ChainID) Ptr() *uint64 {
	if !c.Valid {
		return nil
	}
	id := c.Uint64
	return &id
}

func (c *ChainID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = ChainID{}
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("ChainID: negative value %d", v)
		}
		*c = ChainID{Uint64: uint64(v), Valid: true}
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("ChainID: unsupported Scan type %T", src)
	}
}

func (c ChainID) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	return strconv.FormatUint(c.Uint64, 10), nil
}

func (c *ChainID) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*c = ChainID{}
		return nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("ChainID: parse %q: %w", s, err)
	}
	*c = ChainID{Uint64: id, Valid: true}
	return nil
}
