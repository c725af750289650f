package main

import (
	"errors"
	"sync"

	"github.com/pebbe/zmq4"
)

// messagePublisher sends one topic-tagged payload to downstream consumers.
type messagePublisher interface {
	Publish(topic string, payload []byte) error
}

var errPublisherClosed = errors.New("publisher closed")

// zmqPublisher is a bound PUB socket. zmq sockets are not goroutine safe, so
// every send goes through mu.
type zmqPublisher struct {
	addr string

	mu   sync.Mutex
	sock *zmq4.Socket
}

func newZMQPublisher(addr string) (*zmqPublisher, error) {
	sock, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, err
	}
	_ = sock.SetLinger(0)
	if err := sock.SetSndhwm(defaultZMQSendHWM); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Bind(addr); err != nil {
		sock.Close()
		return nil, err
	}
	logger.Info("result publisher listening", "addr", addr)
	return &zmqPublisher{addr: addr, sock: sock}, nil
}

func (p *zmqPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sock == nil {
		return errPublisherClosed
	}
	_, err := p.sock.SendMessage(topic, payload)
	return err
}

func (p *zmqPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sock == nil {
		return nil
	}
	err := p.sock.Close()
	p.sock = nil
	return err
}

// jobNotification is the new-work message sessions forward to miners.
type jobNotification struct {
	JobID      uint64 `json:"jobId"`
	Height     uint64 `json:"height"`
	PrePow     string `json:"prePow"`
	Difficulty uint64 `json:"difficulty"`
	Clean      bool   `json:"clean"`
}

func newJobNotification(w *JobWrapper[*GrinJob]) jobNotification {
	job := w.Job()
	return jobNotification{
		JobID:      job.ID(),
		Height:     job.Height(),
		PrePow:     job.PrePowHex(),
		Difficulty: job.NetworkDifficulty(),
		Clean:      w.IsClean(),
	}
}

// forwardJobs publishes every job delivered on ch until ch is closed.
func forwardJobs(ch <-chan *JobWrapper[*GrinJob], pub messagePublisher) {
	for w := range ch {
		if w == nil || w.Job() == nil {
			continue
		}
		payload, err := fastJSONMarshal(newJobNotification(w))
		if err != nil {
			logger.Error("job notification marshal", "error", err)
			continue
		}
		if err := pub.Publish(topicJob, payload); err != nil {
			logger.Warn("job notification publish", "height", w.Job().Height(), "error", err)
		}
	}
}
