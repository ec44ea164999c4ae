package command

import "github.com/wiredb/nanoredis/internal/resp"

func errWrongArgs(name string) []byte {
	return resp.Error("ERR wrong number of arguments for '" + name + "' command")
}

func errNotInteger() []byte {
	return resp.Error("ERR value is not an integer or out of range")
}

func errTimeout() []byte {
	return resp.Error("ERR timeout is not a float or out of range")
}

func errOverflow() []byte {
	return resp.Error("ERR increment or decrement would overflow")
}

func errSyntax() []byte {
	return resp.Error("ERR syntax error")
}

func errWrongType() []byte {
	return resp.Error("WRONGTYPE Operation against a key holding the wrong kind of value")
}

func errUnknownCommand(name string) []byte {
	return resp.Error("ERR unknown command '" + name + "'")
}

// UnknownCommandReply is errUnknownCommand exported for the connection layer,
// which needs it for names the registry itself doesn't recognize.
func UnknownCommandReply(name string) []byte {
	return errUnknownCommand(name)
}
