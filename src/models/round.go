package models

import (
	"strconv"
	"time"
)

// Round is the discrete step of the protocol. Committees are a function of
// the round.
type Round uint32

// GenesisRound holds the single genesis point that every chain starts from.
const GenesisRound Round = 0

// Next returns the following round.
func (r Round) Next() Round {
	return r + 1
}

// Prev returns the preceding round. It saturates at zero.
func (r Round) Prev() Round {
	if r == 0 {
		return 0
	}
	return r - 1
}

func (r Round) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

// UnixTime is a point timestamp in milliseconds since the unix epoch.
type UnixTime uint64

// Now returns the current wall time.
func Now() UnixTime {
	return UnixTime(time.Now().UnixNano() / int64(time.Millisecond))
}

// Max returns the greater of two timestamps.
func (t UnixTime) Max(other UnixTime) UnixTime {
	if other > t {
		return other
	}
	return t
}
