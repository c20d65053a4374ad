package engine

import (
	"fmt"
	"strconv"
)

// Command is one outbound protocol line.
type Command string

const (
	CmdUCI     Command = "uci"
	CmdIsReady Command = "isready"
	CmdNewGame Command = "ucinewgame"
	CmdStop    Command = "stop"
	CmdQuit    Command = "quit"
)

func SetOption(name string, value any) Command {
	return Command(fmt.Sprintf("setoption name %s value %v", name, value))
}

func Position(fen string) Command {
	return Command("position fen " + fen)
}

func GoDepth(depth int) Command {
	return Command("go depth " + strconv.Itoa(depth))
}
