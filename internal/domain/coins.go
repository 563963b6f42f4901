package domain

import "encoding/json"

// Coins extracts the coin balance from a profile document. A missing or
// non-numeric value reads as zero, and a stored value below zero is clamped,
// so callers never observe a negative balance.
func Coins(doc map[string]any) int64 {
	if doc == nil {
		return 0
	}
	var balance int64
	switch v := doc[CoinsKey].(type) {
	case int64:
		balance = v
	case int:
		balance = int64(v)
	case float64:
		balance = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		balance = n
	default:
		return 0
	}
	if balance < 0 {
		return 0
	}
	return balance
}

// SetCoins returns the document with the balance field set, allocating a
// fresh map when the document is nil
func SetCoins(doc map[string]any, balance int64) map[string]any {
	if doc == nil {
		doc = make(map[string]any)
	}
	doc[CoinsKey] = balance
	return doc
}
