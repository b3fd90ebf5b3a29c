package domain

import "strings"

// Source names the feed a candidate event came through.
type Source string

const (
	SourcePush   Source = "PUSH"
	SourcePoll   Source = "POLL"
	SourceReplay Source = "REPLAY"
)

func (s Source) String() string { return string(s) }

// ParseSource maps a feed label to a Source, case-insensitively.
// Unknown or empty labels fall back to SourcePush with ok == false.
func ParseSource(label string) (s Source, ok bool) {
	switch Source(strings.ToUpper(strings.TrimSpace(label))) {
	case SourcePush:
		return SourcePush, true
	case SourcePoll:
		return SourcePoll, true
	case SourceReplay:
		return SourceReplay, true
	}
	return SourcePush, false
}
