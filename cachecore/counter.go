package cachecore

import (
	"fmt"
	"strconv"
)

// ParseCounter decodes a stored base-10 counter.
func ParseCounter(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: stored value is not a base-10 int64", ErrTypeMismatch)
	}
	return n, nil
}

// AddCounter returns current+delta or ErrTypeMismatch on int64 overflow.
func AddCounter(current, delta int64) (int64, error) {
	next := current + delta
	if (delta > 0 && next < current) || (delta < 0 && next > current) {
		return 0, fmt.Errorf("%w: counter overflows int64", ErrTypeMismatch)
	}
	return next, nil
}

// FormatCounter encodes n the way ParseCounter reads it.
func FormatCounter(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}
