package kis

import (
	"fmt"
	"strings"
)

// APIError is a broker-reported failure with its return code and message
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kis api error %s: %s", e.Code, e.Message)
}

// permanentMarkers are message fragments that indicate the order can
// never succeed for this symbol. Retrying such orders only burns API
// quota, so callers blacklist the symbol instead.
var permanentMarkers = []string{
	"거래정지",     // trading halted
	"상장폐지",     // delisted
	"매매 불가",    // not tradable
	"주문가능수량 초과", // exceeds orderable quantity class
	"투자유의",     // investment caution designation
	"invalid symbol",
	"not tradable",
	"delisted",
	"suspended",
}

// IsPermanent reports whether the error indicates a condition that a
// retry cannot fix (halted, delisted, or untradable symbol).
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
