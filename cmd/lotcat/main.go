// Command lotcat demonstrates the LOT engine end to end: it opens two UDP
// sockets on localhost, wires one as a sender and one as a receiver, and
// pushes a file (or, absent -file, a generated payload) from one to the
// other, printing progress and the final outcome.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	lot "github.com/lot-proto/lot"
	"github.com/lot-proto/lot/internal/xlog"
	"github.com/lot-proto/lot/transport"
)

func main() {
	var (
		mtu        = flag.Int("mtu", 23, "link MTU in bytes")
		windowSize = flag.Int("window", 4, "blocks per window")
		timeout    = flag.Duration("timeout", 100*time.Millisecond, "receiver ACK delay")
		maxRetries = flag.Int("retries", 3, "sender retransmit attempts before giving up")
		file       = flag.String("file", "", "path to the file to transfer; a synthetic payload is used if empty")
		payloadLen = flag.Int("size", 4096, "synthetic payload size in bytes, used when -file is empty")
	)
	flag.Parse()

	log := xlog.NewDevelopment()

	object, err := loadPayload(*file, *payloadLen)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lotcat:", err)
		os.Exit(1)
	}

	senderConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, "lotcat:", err)
		os.Exit(1)
	}
	defer senderConn.Close()

	recvConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, "lotcat:", err)
		os.Exit(1)
	}
	defer recvConn.Close()

	senderLink := transport.NewUDP(senderConn, recvConn.LocalAddr(), log.WithName("link.send"))
	defer senderLink.Close()
	recvLink := transport.NewUDP(recvConn, senderConn.LocalAddr(), log.WithName("link.recv"))
	defer recvLink.Close()

	done := make(chan []byte, 1)

	recvCtx, err := lot.New(recvConn.LocalAddr(), recvLink,
		lot.WithMTU(*mtu),
		lot.WithWindowSize(*windowSize),
		lot.WithTimeout(*timeout),
		lot.WithLogger(log.WithName("recv")),
		lot.WithOnReceive(func(id lot.SessionID, data []byte, more bool) {
			log.Info("window delivered", "sessionID", id, "bytes", len(data), "more", more)
		}),
		lot.WithOnComplete(func(dir lot.Direction, id lot.SessionID, err error) {
			if dir != lot.Recv {
				return
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "lotcat: receive failed:", err)
				os.Exit(1)
			}
			done <- nil
		}),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lotcat:", err)
		os.Exit(1)
	}
	defer recvCtx.Destroy()

	sendCtx, err := lot.New(senderConn.LocalAddr(), senderLink,
		lot.WithMTU(*mtu),
		lot.WithWindowSize(*windowSize),
		lot.WithTimeout(*timeout),
		lot.WithMaxRetries(*maxRetries),
		lot.WithLogger(log.WithName("send")),
		lot.WithOnComplete(func(dir lot.Direction, id lot.SessionID, err error) {
			if dir != lot.Send {
				return
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "lotcat: send did not complete:", err)
				os.Exit(1)
			}
			log.Info("send complete", "sessionID", id)
		}),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lotcat:", err)
		os.Exit(1)
	}
	defer sendCtx.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := sendCtx.Send(ctx, object)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lotcat: send failed:", err)
		os.Exit(1)
	}
	log.Info("transfer started", "sessionID", id, "bytes", len(object))

	select {
	case <-done:
		fmt.Println("transfer complete")
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "lotcat: timed out waiting for transfer to complete")
		os.Exit(1)
	}
}

func loadPayload(path string, syntheticLen int) ([]byte, error) {
	if path == "" {
		b := make([]byte, syntheticLen)
		for i := range b {
			b[i] = byte(i)
		}
		return b, nil
	}
	return os.ReadFile(path)
}
