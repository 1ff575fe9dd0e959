package resp

import (
	"fmt"
	"io"
	"strconv"
)

// WriteCommand writes cmd and args as a RESP array of bulk strings, the
// form every Redis/Dragonfly command takes on the wire. Mirrors the
// teacher's redisx.Client.writeCommand.
func WriteCommand(w io.Writer, cmd string, args ...string) error {
	buf := make([]byte, 0, 64)
	buf = appendArrayHeader(buf, 1+len(args))
	buf = appendBulk(buf, cmd)
	for _, a := range args {
		buf = appendBulk(buf, a)
	}
	_, err := w.Write(buf)
	return err
}

func appendArrayHeader(buf []byte, n int) []byte {
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(n), 10)
	return append(buf, '\r', '\n')
}

func appendBulk(buf []byte, s string) []byte {
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, '\r', '\n')
	buf = append(buf, s...)
	return append(buf, '\r', '\n')
}

// FormatArg stringifies a command argument the way the teacher's
// formatArg does, used by higher layers building variadic commands.
func FormatArg(arg interface{}) string {
	switch v := arg.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(arg)
	}
}
