package query

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var numericAggregates = setOf("sum", "mean", "median", "std")

var aggregateNames = setOf("count", "nunique", "sum", "mean", "median", "std", "min", "max", "first", "last")

// aggregate reduces values to a scalar, skipping nulls. ddof only applies
// to std.
func aggregate(name string, values []any, ddof int) (any, error) {
	switch name {
	case "count":
		n := 0
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return float64(n), nil

	case "nunique":
		seen := map[string]bool{}
		for _, v := range values {
			if v != nil {
				seen[valueKey(v)] = true
			}
		}
		return float64(len(seen)), nil

	case "first":
		for _, v := range values {
			if v != nil {
				return v, nil
			}
		}
		return nil, nil

	case "last":
		for i := len(values) - 1; i >= 0; i-- {
			if values[i] != nil {
				return values[i], nil
			}
		}
		return nil, nil

	case "min", "max":
		return extreme(name, values)
	}

	nums, err := numbers(values)
	if err != nil {
		return nil, err
	}
	switch name {
	case "sum":
		if len(nums) == 0 {
			return float64(0), nil
		}
		return exactSum(nums), nil
	case "mean":
		if len(nums) == 0 {
			return nil, nil
		}
		return exactMean(nums), nil
	case "median":
		if len(nums) == 0 {
			return nil, nil
		}
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[mid], nil
		}
		return (nums[mid-1] + nums[mid]) / 2, nil
	case "std":
		if len(nums)-ddof <= 0 {
			return nil, nil
		}
		mean := sum(nums) / float64(len(nums))
		var sq float64
		for _, x := range nums {
			sq += (x - mean) * (x - mean)
		}
		return finite(math.Sqrt(sq / float64(len(nums)-ddof))), nil
	}
	return nil, errors.Errorf("unsupported aggregation '%s'", name)
}

func numbers(values []any) ([]float64, error) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		f, ok := asNumber(v)
		if !ok {
			return nil, typeErrorf("could not convert %s to numeric", displayValue(v))
		}
		out = append(out, f)
	}
	return out, nil
}

func extreme(name string, values []any) (any, error) {
	var best any
	for _, v := range values {
		if v == nil {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		c, ok := compareScalars(v, best)
		if !ok {
			op := "<"
			if name == "max" {
				op = ">"
			}
			return nil, typeErrorf("'%s' not supported between instances of '%s' and '%s'", op, typeName(v), typeName(best))
		}
		if (name == "min" && c < 0) || (name == "max" && c > 0) {
			best = v
		}
	}
	return best, nil
}

// exactSum adds in decimal so that sums of currency-like columns do not
// pick up binary rounding noise.
func exactSum(nums []float64) any {
	total, ok := decimalSum(nums)
	if !ok {
		return finite(sum(nums))
	}
	f, _ := total.Float64()
	return f
}

func exactMean(nums []float64) any {
	total, ok := decimalSum(nums)
	if !ok {
		return finite(sum(nums) / float64(len(nums)))
	}
	f, _ := total.Div(decimal.NewFromInt(int64(len(nums)))).Float64()
	return f
}

func decimalSum(nums []float64) (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, x := range nums {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return total, false
		}
		total = total.Add(decimal.NewFromFloat(x))
	}
	return total, true
}

func sum(nums []float64) float64 {
	var s float64
	for _, x := range nums {
		s += x
	}
	return s
}

// roundHalfEven rounds to the given number of decimals with banker's
// rounding, as Python's round does.
func roundHalfEven(x float64, places int) any {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	f, _ := decimal.NewFromFloat(x).RoundBank(int32(places)).Float64()
	return f
}
