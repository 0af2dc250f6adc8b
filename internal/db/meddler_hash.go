package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("hash", HashMeddler{})
}

// HashMeddler converts between common.Hash (or *common.Hash for nullable
// columns) and the hex string stored in SQLite.
type HashMeddler struct{}

func (HashMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (HashMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **common.Hash:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		h := common.HexToHash(ns.String)
		*ptr = &h
		return nil
	case *common.Hash:
		if !ns.Valid {
			*ptr = common.Hash{}
			return nil
		}
		*ptr = common.HexToHash(ns.String)
		return nil
	}

	return fmt.Errorf("expected *common.Hash or **common.Hash, got %T", fieldAddr)
}

func (HashMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch v := field.(type) {
	case *common.Hash:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	case common.Hash:
		return v.Hex(), nil
	}

	return nil, fmt.Errorf("expected common.Hash or *common.Hash, got %T", field)
}
