package channel

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/agent"
	"github.com/baker-street/brain/pkg/door"
	"github.com/baker-street/brain/pkg/logger"
)

// DiscordConfig configures a Discord-backed Channel.
type DiscordConfig struct {
	BotToken      string
	StaticAllowed []string
}

// Discord is a Channel implementation that bridges a Discord bot
// connection to the agent loop, gated by the door policy (§4.12).
type Discord struct {
	cfg     DiscordConfig
	agent   *agent.Agent
	door    *door.Door
	session *discordgo.Session

	mu            sync.Mutex
	conversations map[string]string // discord channel ID -> conversation ID
}

// NewDiscord constructs a Discord channel adapter.
func NewDiscord(cfg DiscordConfig, ag *agent.Agent, d *door.Door) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return &Discord{
		cfg:           cfg,
		agent:         ag,
		door:          d,
		session:       session,
		conversations: make(map[string]string),
	}, nil
}

// Name implements Channel.
func (d *Discord) Name() string { return "discord" }

// Start implements Channel: opens the gateway connection and blocks until
// ctx is cancelled.
func (d *Discord) Start(ctx context.Context) error {
	d.session.AddHandler(d.handleMessage)

	if err := d.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord gateway connection")
	}
	defer d.session.Close()

	logger.G(ctx).Info("discord channel connected")
	<-ctx.Done()
	return nil
}

func (d *Discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	ctx := context.Background()
	senderID := m.Author.ID
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	verdict, err := d.door.CheckMessage(ctx, "discord", senderID, text, d.cfg.StaticAllowed)
	if err != nil {
		logger.G(ctx).WithError(err).Error("door policy check failed")
		return
	}

	switch verdict.Action {
	case door.ActionDeny:
		return
	case door.ActionChallenge:
		d.reply(s, m.ChannelID, verdict.Message)
		return
	case door.ActionValidateCode:
		result, err := d.door.AttemptPairing(ctx, "discord", senderID, verdict.Code)
		if err != nil {
			logger.G(ctx).WithError(err).Error("pairing attempt failed")
			return
		}
		d.reply(s, m.ChannelID, result.Message)
		return
	case door.ActionAllow:
		// fall through to the agent loop
	default:
		return
	}

	convID := d.conversationFor(m.ChannelID)
	result, err := d.agent.Chat(ctx, text, agent.ChatOptions{ConversationID: convID, Channel: "discord"})
	if err != nil {
		logger.G(ctx).WithError(err).Error("agent chat turn failed")
		d.reply(s, m.ChannelID, "sorry, something went wrong handling that")
		return
	}
	d.setConversation(m.ChannelID, result.ConversationID)
	d.reply(s, m.ChannelID, result.Response)
}

func (d *Discord) conversationFor(discordChannelID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conversations[discordChannelID]
}

func (d *Discord) setConversation(discordChannelID, conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conversations[discordChannelID] = conversationID
}

func (d *Discord) reply(s *discordgo.Session, channelID, text string) {
	if text == "" {
		return
	}
	if _, err := s.ChannelMessageSend(channelID, text); err != nil {
		logger.G(context.Background()).WithError(err).Error("failed to send discord message")
	}
}
