package engine

import (
	"strconv"
	"strings"
)

// EventKind classifies an inbound protocol line.
type EventKind int

const (
	EventID EventKind = iota + 1
	EventUCIOK
	EventReadyOK
	EventInfo
	EventBestMove
)

// Info is a parsed "info" line. Scores are relative to the side to move, as sent.
// Score and Mate are never both set.
type Info struct {
	Depth   int
	MultiPV int
	Score   *int
	Mate    *int
	Nodes   int64
	PV      []string
}

// Event is one recognised inbound line.
type Event struct {
	Kind     EventKind
	Name     string // engine name, for EventID
	Info     Info
	BestMove string
	Ponder   string
}

// ParseLine decodes an engine output line. Unrecognised or malformed lines
// report false and should be ignored.
func ParseLine(line string) (Event, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{}, false
	}

	switch fields[0] {
	case "uciok":
		return Event{Kind: EventUCIOK}, true
	case "readyok":
		return Event{Kind: EventReadyOK}, true
	case "id":
		if len(fields) >= 3 && fields[1] == "name" {
			return Event{Kind: EventID, Name: strings.Join(fields[2:], " ")}, true
		}
		return Event{}, false
	case "bestmove":
		if len(fields) < 2 {
			return Event{}, false
		}
		ev := Event{Kind: EventBestMove, BestMove: fields[1]}
		if ev.BestMove == "(none)" {
			ev.BestMove = ""
		}
		if len(fields) >= 4 && fields[2] == "ponder" {
			ev.Ponder = fields[3]
		}
		return ev, true
	case "info":
		info, ok := parseInfo(fields[1:])
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventInfo, Info: info}, true
	}
	return Event{}, false
}

func parseInfo(fields []string) (Info, bool) {
	info := Info{MultiPV: 1}
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			// free text until end of line
			return Info{}, false
		case "depth":
			n, ok := intAt(fields, i+1)
			if !ok {
				return Info{}, false
			}
			info.Depth = n
			i++
		case "multipv":
			n, ok := intAt(fields, i+1)
			if !ok {
				return Info{}, false
			}
			info.MultiPV = n
			i++
		case "nodes":
			if i+1 >= len(fields) {
				return Info{}, false
			}
			n, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil {
				return Info{}, false
			}
			info.Nodes = n
			i++
		case "score":
			if i+2 >= len(fields) {
				return Info{}, false
			}
			n, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return Info{}, false
			}
			switch fields[i+1] {
			case "cp":
				info.Score, info.Mate = &n, nil
			case "mate":
				info.Mate, info.Score = &n, nil
			default:
				return Info{}, false
			}
			i += 2
		case "pv":
			info.PV = append([]string(nil), fields[i+1:]...)
			return info, true
		}
	}
	return info, true
}

func intAt(fields []string, i int) (int, bool) {
	if i >= len(fields) {
		return 0, false
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, false
	}
	return n, true
}
