package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// DefaultAPIURL is the public Bot API host.
const DefaultAPIURL = "https://api.telegram.org"

// Client adapts the Bot API to the membership and delivery interfaces.
// It never polls for updates.
type Client struct {
	bot   *bot.Bot
	token string
}

// NewClient creates a Bot API client. An empty apiURL selects DefaultAPIURL.
func NewClient(httpClient *http.Client, apiURL, token string) (*Client, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	b, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(strings.TrimRight(apiURL, "/")),
		bot.WithHTTPClient(time.Minute, httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create bot api client: %w", err)
	}

	return &Client{bot: b, token: token}, nil
}

// IsMember reports whether userID is an active member of chatID.
func (c *Client) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		// Bot API user ids are numeric; anything else belongs to no chat.
		return false, nil
	}

	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: chatID, UserID: id})
	if err != nil {
		if errors.Is(err, bot.ErrorBadRequest) && strings.Contains(strings.ToLower(err.Error()), "user not found") {
			return false, nil
		}

		return false, c.redact("getChatMember", err)
	}

	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, nil
	case models.ChatMemberTypeRestricted:
		return member.Restricted != nil && member.Restricted.IsMember, nil
	default:
		return false, nil
	}
}

// CopyMessage copies messageID from fromChatID into chatID without a forward header.
func (c *Client) CopyMessage(ctx context.Context, chatID, fromChatID string, messageID int64) error {
	_, err := c.bot.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:         chatID,
		FromChatID:     fromChatID,
		MessageID:      int(messageID),
		ProtectContent: true,
	})

	return c.redact("copyMessage", err)
}

// SendMessage sends a plain text message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})

	return c.redact("sendMessage", err)
}

// IsRejected reports Bot API answers that repeating the call cannot change:
// 400 (bad request) and 403 (bot blocked or not in the chat).
func IsRejected(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorForbidden)
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// redact keeps the bot token, which is part of every request URL, out of error text.
func (c *Client) redact(method string, err error) error {
	if err == nil {
		return nil
	}

	msg := method + ": " + err.Error()
	if c.token != "" {
		msg = strings.ReplaceAll(msg, c.token, "<redacted>")
	}

	return &redactedError{msg: msg, err: err}
}
