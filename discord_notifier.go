package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	discordQueueLimit   = 32
	discordSendInterval = 2 * time.Second
)

// discordNotifier posts a line to one channel per solved block. Messages are
// queued and sent from a single loop to stay under Discord rate limits.
type discordNotifier struct {
	channelID string
	dg        *discordgo.Session
	send      func(channelID, msg string) error

	mu      sync.Mutex
	queue   []string
	dropped int
}

func newDiscordNotifier(cfg Config) *discordNotifier {
	return &discordNotifier{channelID: strings.TrimSpace(cfg.DiscordNotifyChannelID)}
}

func (n *discordNotifier) start(ctx context.Context, token string) error {
	if n == nil {
		return fmt.Errorf("notifier not configured")
	}
	dg, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds)
	if err := dg.Open(); err != nil {
		return err
	}
	n.dg = dg
	n.send = func(channelID, msg string) error {
		_, err := dg.ChannelMessageSend(channelID, msg)
		return err
	}
	go n.loop(ctx)
	logger.Info("discord notifier started", "channel_id", n.channelID)
	return nil
}

func (n *discordNotifier) close() {
	if n == nil || n.dg == nil {
		return
	}
	_ = n.dg.Close()
}

func (n *discordNotifier) noticePrefix() string {
	return "[" + poolSoftwareName + "] "
}

// notifySolved is the solved-share hook.
func (n *discordNotifier) notifySolved(msg SolvedShareMessage) {
	n.enqueue(fmt.Sprintf("Block candidate at height %d found by %s (edge bits %d, hash %s)",
		msg.Height, msg.WorkerFullName, msg.EdgeBits, msg.BlockHash))
}

func (n *discordNotifier) enqueue(line string) {
	if n == nil {
		return
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) >= discordQueueLimit {
		n.dropped++
		return
	}
	n.queue = append(n.queue, n.noticePrefix()+line)
}

func (n *discordNotifier) loop(ctx context.Context) {
	ticker := time.NewTicker(discordSendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sendNext()
		}
	}
}

// sendNext sends the head of the queue. The message is popped after a
// successful send or a permanent error.
func (n *discordNotifier) sendNext() {
	if n == nil || n.send == nil || n.channelID == "" {
		return
	}
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.mu.Unlock()
		return
	}
	next := n.queue[0]
	n.mu.Unlock()

	err := n.send(n.channelID, next)
	if err != nil {
		logger.Warn("discord notify send failed", "error", err)
		if !isDiscordPermanentError(err) {
			return
		}
	}

	n.mu.Lock()
	if len(n.queue) > 0 {
		n.queue = n.queue[1:]
	}
	if n.dropped > 0 && len(n.queue) < discordQueueLimit {
		n.queue = append(n.queue, n.noticePrefix()+fmt.Sprintf("Notification backlog full; dropped %d messages.", n.dropped))
		n.dropped = 0
	}
	n.mu.Unlock()
}

func isDiscordPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}
