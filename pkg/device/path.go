package device

import "fmt"

// CoinType is the registered SLIP-44 coin type used by the signing application.
const CoinType = 4218

// Path identifies the seed to activate: account index and page under the
// application's coin type.
type Path struct {
	Index uint32
	Page  uint32
}

// String renders the hardened derivation path, e.g. 44'/4218'/0'/0'.
func (p Path) String() string {
	return fmt.Sprintf("44'/%d'/%d'/%d'", CoinType, p.Index, p.Page)
}
