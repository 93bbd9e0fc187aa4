package remote

import (
	"fmt"
	"net"
	"strings"
)

// EscapeBash quotes cmd so it can be passed as the single argument of
// `bash -c`. The whole string is wrapped in single quotes and embedded
// single quotes are closed, double-quoted and reopened:
//
//	echo '$HELLOWORLD="hello world"' | grep "hello"
//
// becomes
//
//	'echo '"'"'$HELLOWORLD="hello world"'"'"' | grep "hello"'
func EscapeBash(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd) + 2)

	b.WriteByte('\'')
	for _, r := range cmd {
		if r == '\'' {
			b.WriteString(`'"'"'`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')

	return b.String()
}

// HostIP resolves the host part of an addr in "host:port" form and
// returns the first resolved IP along with the port.
func HostIP(addr string) (net.IP, int, error) {
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", addr, err)
	}
	return tcp.IP, tcp.Port, nil
}
