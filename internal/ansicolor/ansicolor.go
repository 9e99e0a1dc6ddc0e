// Package ansicolor holds the escape sequences used by the pretty log writer.
package ansicolor

const (
	Reset = "\033[0m"
	Bold  = "\033[1m"

	Red    = "\033[31m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Gray   = "\033[90m"

	BgRed    = "\033[41m"
	BgYellow = "\033[43m"
	BgBlue   = "\033[44m"
)
