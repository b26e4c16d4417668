package telegram

import (
	"errors"
	"strings"
)

const HelpText = `Commands:
/start - welcome message
/help - show this help
/ping - check the bot is alive
/add [article] [price] - watch an article until it costs price or less
/list - list your watches
/edit [article] [price] - change the target price
/remove [article] - stop watching an article
/check [article] - check a watched article right now
/price <article> - show the current price of any article
/cancel - abort the current dialog

Arguments left out are asked for one by one.
Example:
/add 146972802 1500
`

const adminHelpText = `
Admin:
/broadcast [text] - send a message to every user, then attach a photo or video or /skip
`

var ErrInvalidArguments = errors.New("invalid arguments")

// ParseWatchArgs splits "/add" and "/edit" arguments. Either part may be
// missing; the dialog asks for it.
func ParseWatchArgs(args string) (itemID, target string, err error) {
	parts := strings.Fields(args)
	switch len(parts) {
	case 0:
		return "", "", nil
	case 1:
		return parts[0], "", nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", ErrInvalidArguments
	}
}

func ParseItemID(args string) (string, error) {
	parts := strings.Fields(args)
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	default:
		return "", ErrInvalidArguments
	}
}
