package exception

import "errors"

var (
	ErrRiskInvalidConfig = errors.New("risk: invalid config")
	ErrRiskNilHistory    = errors.New("risk: nil trade history")
)
