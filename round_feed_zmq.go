package main

import (
	"context"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

const (
	zmqReceiveTimeout = time.Second
	zmqRetryDelay     = 5 * time.Second
)

var zmqRoundTopics = []string{"round", "hashblock"}

// roundTrigger is anything that can be asked to poll now.
type roundTrigger interface {
	RequestPoll()
}

// zmqRoundFeed subscribes to block announcements and turns each one into an
// immediate mining info poll. The ticker keeps running regardless, so a
// dead feed only costs latency.
type zmqRoundFeed struct {
	addr          string
	trigger       roundTrigger
	healthy       atomic.Bool
	disconnects   atomic.Uint64
	reconnects    atomic.Uint64
	notifications atomic.Uint64
}

func newZMQRoundFeed(addr string, trigger roundTrigger) *zmqRoundFeed {
	return &zmqRoundFeed{addr: addr, trigger: trigger}
}

func (f *zmqRoundFeed) markHealthy() {
	if f.healthy.Swap(true) {
		return
	}
	zmqLog.Info("zmq round feed healthy", "addr", f.addr)
	f.reconnects.Add(1)
}

func (f *zmqRoundFeed) markUnhealthy(reason string, err error) {
	f.disconnects.Add(1)
	fields := []any{"reason", reason}
	if err != nil {
		fields = append(fields, "error", err)
	}
	if f.healthy.Swap(false) {
		zmqLog.Warn("zmq round feed unhealthy", fields...)
	} else if err != nil {
		zmqLog.Error("zmq round feed error", fields...)
	}
}

func (f *zmqRoundFeed) Healthy() bool {
	return f.healthy.Load()
}

func (f *zmqRoundFeed) handleNotification(topic string) {
	switch topic {
	case "round", "hashblock":
		f.notifications.Add(1)
		f.markHealthy()
		if debugLogging {
			zmqLog.Debug("zmq round notification", "topic", topic)
		}
		f.trigger.RequestPoll()
	}
}

func (f *zmqRoundFeed) run(ctx context.Context) {
	for ctx.Err() == nil {
		sub, err := f.connect()
		if err != nil {
			if err := sleepContext(ctx, zmqRetryDelay); err != nil {
				return
			}
			continue
		}
		f.markHealthy()
		zmqLog.Info("watching zmq round notifications", "addr", f.addr)
		f.receive(ctx, sub)
		sub.Close()
		if err := sleepContext(ctx, zmqRetryDelay); err != nil {
			return
		}
	}
}

func (f *zmqRoundFeed) connect() (*zmq4.Socket, error) {
	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		f.markUnhealthy("socket", err)
		return nil, err
	}
	for _, topic := range zmqRoundTopics {
		if err := sub.SetSubscribe(topic); err != nil {
			f.markUnhealthy("subscribe", err)
			sub.Close()
			return nil, err
		}
	}
	if err := sub.SetRcvtimeo(zmqReceiveTimeout); err != nil {
		f.markUnhealthy("set_rcvtimeo", err)
		sub.Close()
		return nil, err
	}
	if err := sub.Connect(f.addr); err != nil {
		f.markUnhealthy("connect", err)
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (f *zmqRoundFeed) receive(ctx context.Context, sub *zmq4.Socket) {
	for ctx.Err() == nil {
		frames, err := sub.RecvMessageBytes(0)
		if err != nil {
			eno := zmq4.AsErrno(err)
			if eno == zmq4.Errno(syscall.EAGAIN) || eno == zmq4.ETIMEDOUT {
				continue
			}
			f.markUnhealthy("receive", err)
			return
		}
		if len(frames) < 1 {
			zmqLog.Warn("zmq notification malformed", "frames", len(frames))
			continue
		}
		f.handleNotification(string(frames[0]))
	}
}
