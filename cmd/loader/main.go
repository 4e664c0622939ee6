package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ash2k/stager/wait"
	"golang.org/x/time/rate"
)

func main() {
	opts := parseArgs(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	senders := uint64(opts.Senders)
	share := func(n uint64) uint64 { return n / senders }
	// One shared limiter paces all senders together.
	limiter := rate.NewLimiter(rate.Limit(opts.Rate), opts.Senders)

	generators := make([]*lineGenerator, 0, opts.Senders)
	var wg wait.Group
	for i := 0; i < opts.Senders; i++ {
		g := newLineGenerator(rand.Int63(), &opts, share)
		generators = append(generators, g)
		wg.StartWithContext(ctx, func(ctx context.Context) {
			if err := send(ctx, opts.Address, opts.MaxPacket, limiter, g); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "sender failed: %v\n", err)
			}
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	statusTicker := time.NewTicker(1 * time.Second)
	defer statusTicker.Stop()
	for {
		select {
		case <-done:
			report(generators)
			return
		case <-statusTicker.C:
			report(generators)
		}
	}
}

func report(generators []*lineGenerator) {
	var totals [4]uint64
	for _, g := range generators {
		r := g.remaining()
		for i := range totals {
			totals[i] += r[i]
		}
	}
	fmt.Printf("remaining: %d counters, %d gauges, %d sets, %d timers\n", totals[0], totals[1], totals[2], totals[3])
}

// send packs generated lines into datagrams of at most maxPacket bytes until the generator is exhausted.
func send(ctx context.Context, address string, maxPacket int, limiter *rate.Limiter, g *lineGenerator) error {
	conn, err := net.DialTimeout("udp", address, 1*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	packet := &bytes.Buffer{}
	line := &strings.Builder{}
	write := func() error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := conn.Write(packet.Bytes()); err != nil {
			fmt.Printf("Pausing for 1 second, error sending packet: %v\n", err)
			time.Sleep(1 * time.Second)
		}
		packet.Reset()
		return nil
	}

	for g.next(line) {
		if packet.Len() > 0 && packet.Len()+line.Len() > maxPacket {
			if err := write(); err != nil {
				return err
			}
		}
		packet.WriteString(line.String())
		line.Reset()
	}
	if packet.Len() > 0 {
		return write()
	}
	return nil
}
