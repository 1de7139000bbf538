package gmgn

import (
	"encoding/base64"
	"strings"

	"github.com/shopspring/decimal"
)

// Distribution buckets of per-token PnL, in percent.
const (
	BucketLossOver50   = "-50% +"
	BucketLossUnder50  = "0% - -50%"
	BucketGainUnder50  = "0 - 50%"
	BucketGain50to199  = "50% - 199%"
	BucketGain200to499 = "200% - 499%"
	BucketGain500to600 = "500% - 600%"
	BucketGainOver600  = "600% +"
)

// Buckets lists the distribution buckets from worst to best.
var Buckets = []string{
	BucketLossOver50,
	BucketLossUnder50,
	BucketGainUnder50,
	BucketGain50to199,
	BucketGain200to499,
	BucketGain500to600,
	BucketGainOver600,
}

var hundred = decimal.NewFromInt(100)

// Bucket returns the bucket of a PnL ratio (0.5 is +50%).
func Bucket(pnl decimal.Decimal) string {
	p := pnl.Mul(hundred)
	switch {
	case p.LessThanOrEqual(decimal.NewFromInt(-50)):
		return BucketLossOver50
	case p.IsNegative():
		return BucketLossUnder50
	case p.LessThan(decimal.NewFromInt(50)):
		return BucketGainUnder50
	case p.LessThan(decimal.NewFromInt(200)):
		return BucketGain50to199
	case p.LessThan(decimal.NewFromInt(500)):
		return BucketGain200to499
	case p.LessThan(decimal.NewFromInt(600)):
		return BucketGain500to600
	default:
		return BucketGainOver600
	}
}

// Distribute counts tokens per bucket. Every bucket is present in the result.
func Distribute(tokens []TokenPnl) map[string]int {
	out := make(map[string]int, len(Buckets))
	for _, b := range Buckets {
		out[b] = 0
	}
	for _, t := range tokens {
		out[Bucket(t.TotalProfitPnl)]++
	}
	return out
}

// DecodeCursor decodes an opaque upstream cursor for logging. Cursors are
// passed back verbatim; decoding is informational only.
func DecodeCursor(cursor string) (string, error) {
	cursor = strings.TrimSpace(cursor)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(cursor); err == nil {
			return string(b), nil
		}
	}
	_, err := base64.StdEncoding.DecodeString(cursor)
	return "", err
}
