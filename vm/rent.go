package vm

// AccountStorageOverhead is the per-account byte cost charged on top of the
// data length when computing the rent-exempt minimum.
const AccountStorageOverhead = 128

// Rent decides how many lamports an account must hold to be exempt.
type Rent struct {
	LamportsPerByteYear uint64  `json:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `json:"exemption_threshold"`
}

// DefaultRent mirrors the usual devnet parameters.
var DefaultRent = Rent{LamportsPerByteYear: 3480, ExemptionThreshold: 2.0}

// MinimumBalance returns the rent-exempt minimum for dataLen bytes of data.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	bytes := uint64(AccountStorageOverhead + dataLen)
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports covers the minimum for dataLen bytes.
func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
