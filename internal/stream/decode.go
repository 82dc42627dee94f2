package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/decom"
)

// Outcome is the decode of one packet. Err is set when the packet could not
// be decoded; in lenient mode Result and Err may both be set.
type Outcome struct {
	Packet Packet
	Result *decom.Result
	Err    error
}

// DecodeAll decodes every packet of src with workers goroutines and calls fn
// with the outcomes in stream order. Decoding stops at the first error from
// src or fn, or when ctx is done.
func DecodeAll(ctx context.Context, src Source, d *decom.Decoder, container string, workers int, fn func(Outcome) error) error {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan Packet, workers)
	results := make(chan Outcome, workers)

	var readErr error
	go func() {
		defer close(jobs)
		for {
			p, err := src.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				readErr = err
				return
			}
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				res, err := d.Decode(p.Data, container)
				select {
				case results <- Outcome{Packet: p, Result: res, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// reorder: hold outcomes until every earlier packet was delivered
	pending := map[int]Outcome{}
	next := 0
	var fnErr error
	for o := range results {
		if fnErr != nil {
			continue
		}
		pending[o.Packet.Index] = o
		for {
			o, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := fn(o); err != nil {
				fnErr = err
				cancel()
				break
			}
		}
	}
	if fnErr != nil {
		return fnErr
	}
	if readErr != nil {
		return readErr
	}
	return ctx.Err()
}

// DecodeConcatenated decodes packets laid back to back in data, each one
// starting at the byte following the last bit the previous decode consumed.
// It stops at the end of data or at the first packet that fails to decode.
func DecodeConcatenated(ctx context.Context, data []byte, d *decom.Decoder, container string, m *common.Metrics, fn func(Outcome) error) error {
	offset := 0
	for index := 0; offset < len(data); index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := d.DecodeAt(data, offset*8, container)
		if res == nil {
			if err == nil {
				err = fmt.Errorf("no result at offset %d", offset)
			}
			return fn(Outcome{Packet: Packet{Index: index, Offset: int64(offset), Data: data[offset:]}, Err: err})
		}
		n := (res.BitsConsumed + 7) / 8
		if n == 0 {
			return fmt.Errorf("container %s consumed no bits at offset %d", res.Container, offset)
		}
		p := Packet{Index: index, Offset: int64(offset), Data: data[offset : offset+n]}
		if m != nil {
			m.AddPacket(int64(n))
		}
		if err := fn(Outcome{Packet: p, Result: res, Err: err}); err != nil {
			return err
		}
		offset += n
	}
	return nil
}
