package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/zeljkobekcic/webserver/internal/request"
)

// printRequest writes the parsed request the way a client sent it.
func printRequest(w io.Writer, req *request.Request) {
	fmt.Fprintln(w, "Request line:")
	fmt.Fprintf(w, "- Method: %s\n", req.RequestLine.Method)
	fmt.Fprintf(w, "- Target: %s\n", req.RequestLine.RequestTarget)
	fmt.Fprintf(w, "- Version: %s\n", req.RequestLine.HttpVersion)
	fmt.Fprintln(w, "Headers:")
	for _, name := range req.Headers.Names() {
		fmt.Fprintf(w, "- %s: %s\n", name, req.Headers.Get(name))
	}
}

func main() {
	addr := flag.String("addr", ":42069", "address to listen on")
	flag.Parse()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()
	fmt.Println("Listening on", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to accept connection: %v\n", err)
			continue
		}
		fmt.Println("Connection accepted from", conn.RemoteAddr())

		go func(c net.Conn) {
			defer c.Close()

			req, err := request.RequestFromReader(bufio.NewReader(c))
			if req == nil {
				fmt.Printf("Error parsing request: %v\n", err)
				return
			}
			printRequest(os.Stdout, req)
			if err != nil {
				fmt.Printf("Headers cut short: %v\n", err)
			}

			fmt.Println("Connection closed")
		}(conn)
	}
}
