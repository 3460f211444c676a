// Command rtcp-echo-backend is a minimal Backend for manual and
// end-to-end testing: it echoes whatever it reads, wrapping each chunk in
// a plain-text HTTP response when the listener is run in HTTP mode.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/rtcplabs/rtcp/internal/logging"
)

func main() {
	addr := flag.StringP("listen", "l", "0.0.0.0:8083", "address to listen on")
	httpMode := flag.Bool("http", false, "wrap each echoed chunk in an HTTP/1.1 response")
	flag.Parse()

	log := logging.New("info", "text")

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.WithError(err).Fatal("listen failed")
	}
	log.WithField("addr", *addr).Info("echo backend listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		go handle(conn, *httpMode)
	}
}

func handle(conn net.Conn, httpMode bool) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if httpMode {
				head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nContent-Type: text/plain\r\n\r\n", len(chunk))
				if _, werr := conn.Write([]byte(head)); werr != nil {
					return
				}
			}
			if _, werr := conn.Write(chunk); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				fmt.Fprintln(os.Stderr, err)
			}
			return
		}
	}
}
