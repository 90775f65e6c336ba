package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/search"
)

// Fingerprint returns the murmur3 128-bit digest of the primorial's
// big-endian bytes as 32 hex characters.
func Fingerprint(primorial *big.Int) string {
	h := murmur3.New128()
	h.Write(primorial.Bytes())
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}

// EncodeTrace serializes a sizer trace as snappy-compressed JSON.
func EncodeTrace(trace []search.BatchObservation) ([]byte, error) {
	if len(trace) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(trace)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to marshal trace: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeTrace reverses EncodeTrace.
func DecodeTrace(data []byte) ([]search.BatchObservation, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.NewLedgerError(errors.CodeTraceCorrupt, "snappy decompress failed", err)
	}
	var trace []search.BatchObservation
	if err := json.Unmarshal(raw, &trace); err != nil {
		return nil, errors.NewLedgerError(errors.CodeTraceCorrupt, "trace is not valid JSON", err)
	}
	return trace, nil
}
