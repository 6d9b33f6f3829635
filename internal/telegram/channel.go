// Package telegram implements the human escalation channel over the
// Telegram bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leash-dev/leash/internal/approval"
	"github.com/leash-dev/leash/internal/audit"
	"github.com/leash-dev/leash/internal/config"
)

// Outcome is the terminal state of one escalation.
type Outcome int

const (
	// OutcomeUnavailable means the channel could not be contacted; the
	// pipeline proceeds as if this tier had returned ask.
	OutcomeUnavailable Outcome = iota
	OutcomeAllowed
	OutcomeDenied
	OutcomeTimedOut
)

const defaultAPIBase = "https://api.telegram.org"

// Channel posts approval requests to a Telegram chat, waits for the
// operator's button press within a bounded window, and edits the original
// message with the resolved status.
type Channel struct {
	cfg     config.TelegramConfig
	client  *http.Client
	manager *approval.Manager
	store   *audit.Store
}

// NewChannel creates an escalation channel. The audit store may be nil;
// it is used for out-of-band responses delivered via the respond command.
func NewChannel(cfg config.TelegramConfig, manager *approval.Manager, store *audit.Store) *Channel {
	return &Channel{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		manager: manager,
		store:   store,
	}
}

// Ready reports whether the channel is configured to be contacted.
func (c *Channel) Ready() bool { return c.cfg.Ready() }

// RequestDecision runs one escalation to its terminal state. It never
// returns an error that should abort the arbitration pipeline; failures
// degrade to OutcomeUnavailable.
func (c *Channel) RequestDecision(ctx context.Context, req *approval.Request) Outcome {
	if !c.Ready() {
		return OutcomeUnavailable
	}

	id := c.manager.Create(req)

	messageID, err := c.sendRequest(ctx, req, id)
	if err != nil {
		c.manager.Cancel(id)
		return OutcomeUnavailable
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, c.waitTimeout())
	defer cancelWait()

	pollCtx, cancelPoll := context.WithCancel(waitCtx)
	defer cancelPoll()
	go c.poll(pollCtx, id)

	approved, err := c.manager.Wait(waitCtx, id)
	cancelPoll()

	editCtx, cancelEdit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelEdit()

	switch {
	case err != nil:
		c.editStatus(editCtx, messageID, req, "⏰ timed out")
		return OutcomeTimedOut
	case approved:
		c.editStatus(editCtx, messageID, req, "✅ allowed")
		return OutcomeAllowed
	default:
		c.editStatus(editCtx, messageID, req, "⛔ denied")
		return OutcomeDenied
	}
}

func (c *Channel) waitTimeout() time.Duration {
	if c.cfg.WaitTimeout > 0 {
		return c.cfg.WaitTimeout
	}
	return 5 * time.Minute
}

// summary renders the human-readable request text. Untrusted content is
// HTML-escaped before embedding.
func summary(req *approval.Request) string {
	sid := req.SessionID
	if len(sid) > 8 {
		sid = sid[:8]
	}
	target := req.Command
	if len(target) > 300 {
		target = target[:300] + "…"
	}
	return fmt.Sprintf(
		"🤖 <b>Approval needed</b>\nTool: <code>%s</code>\nTarget: <code>%s</code>\nSession: <code>%s</code>",
		escapeHTML(req.Tool), escapeHTML(target), escapeHTML(sid),
	)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }

func (c *Channel) sendRequest(ctx context.Context, req *approval.Request, correlationID string) (int64, error) {
	payload := map[string]any{
		"chat_id":    c.cfg.ChatID,
		"text":       summary(req),
		"parse_mode": "HTML",
		"reply_markup": map[string]any{
			"inline_keyboard": [][]map[string]any{{
				{"text": "✅ Allow", "callback_data": "allow:" + correlationID},
				{"text": "⛔ Deny", "callback_data": "deny:" + correlationID},
			}},
		},
	}
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

func (c *Channel) editStatus(ctx context.Context, messageID int64, req *approval.Request, status string) {
	payload := map[string]any{
		"chat_id":    c.cfg.ChatID,
		"message_id": messageID,
		"text":       summary(req) + "\n\nStatus: <b>" + status + "</b>",
		"parse_mode": "HTML",
	}
	_ = c.call(ctx, "editMessageText", payload, nil)
}

// poll long-polls getUpdates for the operator's button press and relays it
// to the approval manager. It also watches the audit store so a decision
// delivered out of band (leash respond) resolves the wait.
func (c *Channel) poll(ctx context.Context, correlationID string) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.store != nil {
			if status, err := c.store.ApprovalStatus(correlationID); err == nil {
				switch status {
				case audit.StatusAllowed:
					_ = c.manager.Respond(correlationID, true)
					return
				case audit.StatusDenied:
					_ = c.manager.Respond(correlationID, false)
					return
				}
			}
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			// Transient failure; back off and retry until the deadline.
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.CallbackQuery == nil {
				continue
			}
			action, id, ok := parseCallbackData(u.CallbackQuery.Data)
			if !ok || id != correlationID {
				continue
			}
			c.answerCallback(ctx, u.CallbackQuery.ID)
			_ = c.manager.Respond(correlationID, action == "allow")
			return
		}
	}
}

// parseCallbackData splits an "action:correlation_id" payload on the first
// separator.
func parseCallbackData(data string) (action, id string, ok bool) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if parts[0] != "allow" && parts[0] != "deny" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type update struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	} `json:"callback_query,omitempty"`
}

func (c *Channel) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	payload := map[string]any{
		"timeout":         2,
		"offset":          offset,
		"allowed_updates": []string{"callback_query"},
	}
	var result []update
	if err := c.call(ctx, "getUpdates", payload, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Channel) answerCallback(ctx context.Context, callbackID string) {
	_ = c.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, nil)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Channel) call(ctx context.Context, method string, payload map[string]any, result any) error {
	base := c.cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(base, "/"), c.cfg.Token, method)

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("telegram %s: %s", method, api.Description)
	}
	if result != nil && len(api.Result) > 0 {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("telegram %s result: %w", method, err)
		}
	}
	return nil
}
