package store

import (
	"strconv"
)

const (
	// SafeHeadKey is the key of the latest safe head checkpoint.
	SafeHeadKey = "/safe"

	// FinalizedHeadKey is the key of the latest finalized head checkpoint.
	FinalizedHeadKey = "/finalized"

	// safeHistoryPrefix indexes every safe head checkpoint by L2 number.
	// Full keys are like: /h/<l2_number>
	safeHistoryPrefix = "h"
)

func getSafeHistoryKey(number uint64) string {
	return GenerateKey([]string{safeHistoryPrefix, strconv.FormatUint(number, 10)})
}
