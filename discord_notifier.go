package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

const discordNoticeQueueDepth = 64

type noticeKind string

const (
	noticeSubmission noticeKind = "submission"
	noticeOutage     noticeKind = "outage"
	noticeRecovered  noticeKind = "recovered"
)

type notice struct {
	kind noticeKind
	text string
}

// discordNotifier posts short notices to one channel. Notify never blocks
// the caller: when the queue is full the notice is dropped and counted.
// A nil *discordNotifier is valid and discards everything.
type discordNotifier struct {
	channelID string
	dg        *discordgo.Session
	send      func(channelID, content string) error
	queue     chan notice
	metrics   *MinerMetrics
	dropped   atomic.Uint64
	wg        sync.WaitGroup
}

func newDiscordNotifier(cfg Config, metrics *MinerMetrics) *discordNotifier {
	token := strings.TrimSpace(cfg.DiscordBotToken)
	channel := strings.TrimSpace(cfg.DiscordChannelID)
	if token == "" || channel == "" {
		return nil
	}
	return &discordNotifier{
		channelID: channel,
		queue:     make(chan notice, discordNoticeQueueDepth),
		metrics:   metrics,
	}
}

// start opens the Discord session and begins draining the queue until ctx
// is done.
func (n *discordNotifier) start(ctx context.Context, token string) error {
	if n == nil {
		return nil
	}
	if n.send == nil {
		dg, err := discordgo.New("Bot " + strings.TrimSpace(token))
		if err != nil {
			return err
		}
		dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds)
		if err := dg.Open(); err != nil {
			return err
		}
		n.dg = dg
		n.send = func(channelID, content string) error {
			_, err := dg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
				Content:         content,
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			})
			return err
		}
	}
	n.wg.Add(1)
	go n.loop(ctx)
	logger.Info("discord notifier started", "channel_id", n.channelID)
	return nil
}

func (n *discordNotifier) loop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			content := fmt.Sprintf("**%s** %s", msg.kind, msg.text)
			if err := n.send(n.channelID, content); err != nil {
				logger.Warn("discord notice failed", "kind", msg.kind, "error", err)
			}
		}
	}
}

func (n *discordNotifier) Notify(kind noticeKind, text string) {
	if n == nil {
		return
	}
	select {
	case n.queue <- notice{kind: kind, text: text}:
	default:
		n.dropped.Add(1)
		n.metrics.RecordNotifierDrop()
	}
}

func (n *discordNotifier) Dropped() uint64 {
	if n == nil {
		return 0
	}
	return n.dropped.Load()
}

func (n *discordNotifier) close() {
	if n == nil {
		return
	}
	n.wg.Wait()
	if n.dg != nil {
		_ = n.dg.Close()
	}
}
