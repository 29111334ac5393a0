package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

// readRequest collects lines typed on r up to and including the first empty
// one. A request line alone at EOF is also accepted.
func readRequest(r *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err != nil {
			if line != "" {
				lines = append(lines, line)
			}
			if err == io.EOF && len(lines) > 0 {
				return lines, nil
			}
			return nil, err
		}
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// send writes lines to addr as one CRLF-terminated request and copies the
// response to out until the server closes the connection.
func send(addr string, lines []string, out io.Writer, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()
	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	raw := strings.Join(lines, "\r\n") + "\r\n\r\n"
	if _, err := io.WriteString(conn, raw); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if _, err := io.Copy(out, conn); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return nil
}

func main() {
	addr := flag.String("addr", "localhost:6789", "server address")
	timeout := flag.Duration("timeout", 10*time.Second, "dial and exchange timeout")
	flag.Parse()

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Type a request line and headers, then an empty line to send it.")
	for {
		fmt.Print("> ")

		lines, err := readRequest(reader)
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("error reading input: %v", err)
		}

		if err := send(*addr, lines, os.Stdout, *timeout); err != nil {
			log.Printf("%v", err)
		}
		fmt.Println()
	}
}
