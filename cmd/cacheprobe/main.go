// Command cacheprobe is a minimal CLI client for the admin protocol
// (internal/adminproto), letting an operator or an integration test drive
// SET/GET/DELETE/TOUCH/INCR/DECR/CAS against a running cachecored without
// reaching for a full memcached client library.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11311", "cachecored admin address")
	timeout := flag.Duration("timeout", 5*time.Second, "connection timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cacheprobe [-addr host:port] COMMAND [ARGS...] [-- DATA]")
		os.Exit(2)
	}

	if err := run(*addr, *timeout, args); err != nil {
		fmt.Fprintln(os.Stderr, "cacheprobe:", err)
		os.Exit(1)
	}
}

// run builds a single command line (and, for SET/CAS, a data block) from
// args and prints the server's response. A literal "--" argument
// separates the command line from the data payload, e.g.:
//
//	cacheprobe SET mykey 0 0 5 -- hello
func run(addr string, timeout time.Duration, args []string) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	cmdFields := args
	var data string
	for i, a := range args {
		if a == "--" {
			cmdFields = args[:i]
			if i+1 < len(args) {
				data = strings.Join(args[i+1:], " ")
			}
			break
		}
	}

	line := strings.Join(cmdFields, " ") + "\r\n"
	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	if data != "" || strings.EqualFold(cmdFields[0], "SET") || strings.EqualFold(cmdFields[0], "CAS") {
		if _, err := conn.Write([]byte(data + "\r\n")); err != nil {
			return fmt.Errorf("write data block: %w", err)
		}
	}

	isGet := len(cmdFields) > 0 && strings.EqualFold(cmdFields[0], "GET")

	r := bufio.NewReader(conn)
	for {
		resp, err := r.ReadString('\n')
		if resp != "" {
			fmt.Print(resp)
		}
		if err != nil {
			return nil
		}
		// Every command gets exactly one response line, except GET, whose
		// VALUE line is followed by the data block and a terminating END.
		if !isGet || strings.HasPrefix(resp, "END") {
			return nil
		}
	}
}
