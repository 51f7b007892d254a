package exception

import "errors"

var (
	ErrStoreNotFound      = errors.New("store: record not found")
	ErrStoreUnknownDriver = errors.New("store: unknown driver")
	ErrStoreNilDB         = errors.New("store: nil database")
)
