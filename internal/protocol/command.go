// Package protocol implements the dot-delimited text wire format exchanged
// between game clients and the server.
//
// Inbound messages are parsed once into a Command variant. Outbound messages
// are built with the helpers in outbound.go and always start with "s.".
package protocol

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Inbound command tags.
const (
	TagInput = "i"
	TagPing  = "p"
	TagColor = "c"
	TagLag   = "l"
)

// Separator splits the fields of a message.
const Separator = "."

// Command is one parsed inbound message. The concrete type is one of Input,
// Ping, Color, Lag, Malformed or Unknown.
type Command interface {
	// Tag returns the leading field of the message.
	Tag() string
	isCommand()
}

// Input is a batch of player input commands stamped with the client clock
// and a monotonically increasing sequence number.
type Input struct {
	Commands []string
	// Time is the client clock in seconds.
	Time float64
	Seq  uint64
}

// Ping asks the server to echo Token back.
type Ping struct {
	Token string
}

// Color announces a colour change to relay to the opponent.
type Color struct {
	Value string
}

// Lag sets the simulated one-way network delay.
type Lag struct {
	Millis float64
}

// Delay returns Millis as a duration.
func (l Lag) Delay() time.Duration {
	return time.Duration(l.Millis * float64(time.Millisecond))
}

// Malformed is a message with a known tag whose fields could not be parsed.
type Malformed struct {
	Kind   string
	Reason string
}

// Unknown is a message whose tag is not part of the protocol.
type Unknown struct {
	Kind string
}

func (Input) Tag() string       { return TagInput }
func (Ping) Tag() string        { return TagPing }
func (Color) Tag() string       { return TagColor }
func (Lag) Tag() string         { return TagLag }
func (m Malformed) Tag() string { return m.Kind }
func (u Unknown) Tag() string   { return u.Kind }

func (Input) isCommand()     {}
func (Ping) isCommand()      {}
func (Color) isCommand()     {}
func (Lag) isCommand()       {}
func (Malformed) isCommand() {}
func (Unknown) isCommand()   {}

// IsInputClass reports whether raw carries player input, i.e. its leading
// tag begins with "i". Only input-class messages are subject to simulated
// latency.
func IsInputClass(raw string) bool {
	return strings.HasPrefix(raw, TagInput)
}

// Parse splits raw on "." and converts it to a Command.
//
// Postcondition: Never returns nil. Messages that cannot be interpreted are
// returned as Malformed or Unknown so callers can drop them in one place.
func Parse(raw string) Command {
	parts := strings.Split(raw, Separator)
	tag := parts[0]

	switch tag {
	case TagInput:
		return parseInput(parts)
	case TagPing:
		if len(parts) < 2 {
			return Malformed{Kind: tag, Reason: "missing ping token"}
		}
		return Ping{Token: parts[1]}
	case TagColor:
		if len(parts) < 2 || parts[1] == "" {
			return Malformed{Kind: tag, Reason: "missing color value"}
		}
		return Color{Value: parts[1]}
	case TagLag:
		return parseLag(parts)
	default:
		return Unknown{Kind: tag}
	}
}

func parseInput(parts []string) Command {
	if len(parts) < 4 {
		return Malformed{Kind: TagInput, Reason: "expected i.<commands>.<time>.<seq>"}
	}

	var cmds []string
	for _, c := range strings.Split(parts[1], "-") {
		if c != "" {
			cmds = append(cmds, c)
		}
	}
	if len(cmds) == 0 {
		return Malformed{Kind: TagInput, Reason: "empty command list"}
	}

	at, err := ParseClock(parts[2])
	if err != nil {
		return Malformed{Kind: TagInput, Reason: "bad input time " + strconv.Quote(parts[2])}
	}

	seq, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return Malformed{Kind: TagInput, Reason: "bad input sequence " + strconv.Quote(parts[3])}
	}

	return Input{Commands: cmds, Time: at, Seq: seq}
}

func parseLag(parts []string) Command {
	if len(parts) < 2 {
		return Malformed{Kind: TagLag, Reason: "missing lag value"}
	}
	ms, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return Malformed{Kind: TagLag, Reason: "lag value is not a number: " + strconv.Quote(parts[1])}
	}
	if ms < 0 {
		return Malformed{Kind: TagLag, Reason: "lag value must not be negative"}
	}
	return Lag{Millis: ms}
}
