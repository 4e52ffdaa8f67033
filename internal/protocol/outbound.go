package protocol

import (
	"math"
	"strconv"
	"strings"
)

const serverPrefix = "s."

// PingEcho answers a ping with the same token.
func PingEcho(token string) string {
	return serverPrefix + "p." + token
}

// ColorChange relays an opponent's colour.
func ColorChange(value string) string {
	return serverPrefix + "c." + value
}

// Hosting tells a player they created a match and are now its host.
func Hosting(clock float64) string {
	return serverPrefix + "h." + FormatClock(clock)
}

// Joining tells a player they joined the match hosted by hostID.
func Joining(hostID string) string {
	return serverPrefix + "j." + hostID
}

// Ready tells both players the match is starting at the given server clock.
func Ready(clock float64) string {
	return serverPrefix + "r." + FormatClock(clock)
}

// Ended tells a player their match is over.
func Ended() string {
	return serverPrefix + "e"
}

// FormatClock renders a clock value in seconds so it survives the "."
// separator: the shortest decimal form with the first "." replaced by "-".
//
// Precondition: clock must be >= 0; a leading minus sign would be read back
// as the decimal point.
func FormatClock(clock float64) string {
	s := strconv.FormatFloat(clock, 'f', -1, 64)
	return strings.Replace(s, ".", "-", 1)
}

// ParseClock reverses FormatClock.
func ParseClock(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(s, "-", ".", 1), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

// EncodeInput builds an input message. It is the client side of Parse and is
// used by the load bot.
//
// Precondition: cmds must be non-empty and no command may contain "." or "-".
func EncodeInput(cmds []string, clock float64, seq uint64) string {
	return TagInput + Separator + strings.Join(cmds, "-") + Separator +
		FormatClock(clock) + Separator + strconv.FormatUint(seq, 10)
}
