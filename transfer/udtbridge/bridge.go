/*
File Name:  bridge.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

// Package udtbridge satisfies package udt's channel-based multiplexer
// contract (incomingData/outgoingData channels) with a real *net.UDPConn,
// so udt.DialUDT/ListenUDT are genuinely dialable over the network rather
// than dead code. This is experimental: the production transfer data path
// never uses it.
package udtbridge

import (
	"fmt"
	"net"

	"github.com/voidwarp/core/udt"
)

// Bridge pumps raw packets between a UDP socket and the channels package
// udt's multiplexer expects.
type Bridge struct {
	conn       *net.UDPConn
	incoming   chan []byte
	outgoing   chan []byte
	terminate  chan struct{}
	remoteAddr *net.UDPAddr
}

// Dial opens a UDP socket to remoteAddr and starts pumping packets.
func Dial(remoteAddr string) (*Bridge, error) {
	raddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("udtbridge: resolve %s: %w", remoteAddr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("udtbridge: dial %s: %w", remoteAddr, err)
	}

	b := &Bridge{
		conn:       conn,
		incoming:   make(chan []byte, 64),
		outgoing:   make(chan []byte, 64),
		terminate:  make(chan struct{}),
		remoteAddr: raddr,
	}
	go b.pumpIn()
	go b.pumpOut()
	return b, nil
}

// Listen opens a UDP socket bound to localAddr and starts pumping packets,
// for the listener side of an experimental UDT server.
func Listen(localAddr string) (*Bridge, error) {
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("udtbridge: resolve %s: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udtbridge: listen %s: %w", localAddr, err)
	}

	b := &Bridge{
		conn:      conn,
		incoming:  make(chan []byte, 64),
		outgoing:  make(chan []byte, 64),
		terminate: make(chan struct{}),
	}
	go b.pumpIn()
	go b.pumpOut()
	return b, nil
}

func (b *Bridge) pumpIn() {
	buf := make([]byte, 65535)
	for {
		n, addr, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if b.remoteAddr == nil {
			b.remoteAddr = addr
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		select {
		case b.incoming <- packet:
		case <-b.terminate:
			return
		}
	}
}

func (b *Bridge) pumpOut() {
	for {
		select {
		case packet := <-b.outgoing:
			if b.remoteAddr != nil {
				b.conn.WriteToUDP(packet, b.remoteAddr)
			}
		case <-b.terminate:
			return
		}
	}
}

// Incoming is the channel package udt reads inbound packets from.
func (b *Bridge) Incoming() <-chan []byte { return b.incoming }

// Outgoing is the channel package udt writes outbound packets to.
func (b *Bridge) Outgoing() chan<- []byte { return b.outgoing }

// Termination is closed when Close is called, matching udt's
// terminationSignal contract.
func (b *Bridge) Termination() <-chan struct{} { return b.terminate }

// Close stops the pump goroutines and the underlying UDP socket.
func (b *Bridge) Close() error {
	close(b.terminate)
	return b.conn.Close()
}

// udtCloser adapts Bridge.Close to package udt's Closer interface, which
// wants a closing reason rather than a bare error.
type udtCloser struct{ b *Bridge }

func (c udtCloser) Close(reason int) error       { return c.b.Close() }
func (c udtCloser) CloseLinger(reason int) error { return nil }

// Closer returns a udt.Closer backed by this bridge.
func (b *Bridge) Closer() udt.Closer { return udtCloser{b: b} }
