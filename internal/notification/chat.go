// Package notification delivers shift events outward: text and photo
// messages into per-employee chat threads, admin direct messages, and web
// push notifications for subscribed supervisors. Delivery is best-effort;
// failures are reported to the caller but never block a ledger write.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"shift-tracker-backend/config"
)

// ChatSender delivers text and photo messages to chat threads.
type ChatSender interface {
	SendToThread(ctx context.Context, threadID int64, text string) error
	SendPhotoToThread(ctx context.Context, threadID int64, photo []byte, caption string) error
	NotifyAdmin(ctx context.Context, text string) error
}

// BotAPISender talks to a bot HTTP API ("<base>/bot<token>/sendMessage",
// "/sendPhoto") with the group chat carrying one thread per employee.
type BotAPISender struct {
	apiBase     string
	token       string
	groupChatID int64
	adminChatID int64
	client      *http.Client
}

// NewBotAPISender builds a sender from chat configuration.
func NewBotAPISender(cfg *config.ChatConfig) *BotAPISender {
	return &BotAPISender{
		apiBase:     cfg.APIBase,
		token:       cfg.BotToken,
		groupChatID: cfg.GroupChatID,
		adminChatID: cfg.AdminChatID,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *BotAPISender) url(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.apiBase, s.token, method)
}

func (s *BotAPISender) sendMessage(ctx context.Context, chatID, threadID int64, text string) error {
	if s.token == "" {
		return fmt.Errorf("chat bot token is not configured")
	}

	payload := map[string]any{"chat_id": chatID, "text": text}
	if threadID != 0 {
		payload["message_thread_id"] = threadID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req)
}

// SendToThread posts a text message into an employee's thread in the group
// chat.
func (s *BotAPISender) SendToThread(ctx context.Context, threadID int64, text string) error {
	return s.sendMessage(ctx, s.groupChatID, threadID, text)
}

// SendPhotoToThread posts a photo with a caption into an employee's thread.
func (s *BotAPISender) SendPhotoToThread(ctx context.Context, threadID int64, photo []byte, caption string) error {
	if s.token == "" {
		return fmt.Errorf("chat bot token is not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("chat_id", strconv.FormatInt(s.groupChatID, 10))
	if threadID != 0 {
		_ = mw.WriteField("message_thread_id", strconv.FormatInt(threadID, 10))
	}
	_ = mw.WriteField("caption", caption)
	part, err := mw.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finish photo form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("create photo request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return s.do(req)
}

// NotifyAdmin sends a direct message to the configured admin chat. With no
// admin chat configured it is a no-op so audit notes degrade quietly.
func (s *BotAPISender) NotifyAdmin(ctx context.Context, text string) error {
	if s.adminChatID == 0 {
		return nil
	}
	return s.sendMessage(ctx, s.adminChatID, 0, text)
}

func (s *BotAPISender) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("chat API returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

var _ ChatSender = (*BotAPISender)(nil)
