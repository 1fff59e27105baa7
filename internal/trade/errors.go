package trade

import "fmt"

// MalformedTradeError reports a raw record that cannot be normalized.
type MalformedTradeError struct {
	TradeID string
	Reason  string
}

func (e *MalformedTradeError) Error() string {
	if e.TradeID == "" {
		return fmt.Sprintf("malformed trade: %s", e.Reason)
	}
	return fmt.Sprintf("malformed trade %s: %s", e.TradeID, e.Reason)
}

func malformed(id, format string, args ...interface{}) error {
	return &MalformedTradeError{TradeID: id, Reason: fmt.Sprintf(format, args...)}
}
