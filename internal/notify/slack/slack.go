// Package slack is the Slack moderation channel: it posts classified threats
// for human review, reads decisions back from emoji reactions and thread
// replies, and publishes approved threats to the community channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/threatwatch/internal/approval"
	"github.com/linnemanlabs/threatwatch/internal/threat"
	"github.com/linnemanlabs/threatwatch/internal/triage"
)

const (
	apiBaseURL  = "https://slack.com/api"
	httpTimeout = 10 * time.Second

	approveEmoji = "white_check_mark"
	rejectEmoji  = "x"

	maxDescriptionLen = 3000
)

// Client talks to the Slack Web API with a bot token. The message timestamp
// returned by chat.postMessage serves as the transmission reference: it keys
// both the reaction poll and the confirmation thread.
type Client struct {
	token            string
	moderatorChannel string
	communityChannel string
	baseURL          string
	client           *http.Client
	logger           log.Logger
}

// New creates a Slack client for the given bot token and channels.
func New(token, moderatorChannel, communityChannel string, logger log.Logger) *Client {
	return &Client{
		token:            token,
		moderatorChannel: moderatorChannel,
		communityChannel: communityChannel,
		baseURL:          apiBaseURL,
		client:           &http.Client{Timeout: httpTimeout},
		logger:           logger,
	}
}

// Post sends a threat to the moderator channel for review and returns the
// message timestamp as the transmission reference.
func (c *Client) Post(ctx context.Context, rec *threat.Record, v *triage.Verdict) (string, error) {
	payload := map[string]any{
		"channel": c.moderatorChannel,
		"text":    fmt.Sprintf("[%s] %s", v.Priority, rec.Title),
		"blocks":  reviewBlocks(rec, v),
	}

	var resp postMessageResponse
	if err := c.callJSON(ctx, "chat.postMessage", payload, &resp); err != nil {
		return "", err
	}

	c.logger.Info(ctx, "posted threat for review",
		"threat_id", rec.ID,
		"priority", string(v.Priority),
		"ref", resp.TS,
	)
	return resp.TS, nil
}

// PollDecision reads the moderator signal for a posted threat. An approve
// reaction wins over a reject reaction when both are present. A reject
// reaction with a thread reply carries the reply text as the edit to publish;
// a bare reject drops the threat. No recognized reaction means no decision.
func (c *Client) PollDecision(ctx context.Context, ref string) (approval.Decision, error) {
	params := url.Values{
		"channel":   {c.moderatorChannel},
		"timestamp": {ref},
	}

	var resp reactionsResponse
	if err := c.callForm(ctx, "reactions.get", params, &resp); err != nil {
		return approval.Decision{}, err
	}

	var approved, rejected bool
	for _, r := range resp.Message.Reactions {
		switch r.Name {
		case approveEmoji:
			approved = true
		case rejectEmoji:
			rejected = true
		}
	}

	switch {
	case approved:
		return approval.Decision{Kind: approval.DecisionApproved}, nil
	case rejected:
		edit, err := c.threadReply(ctx, ref)
		if err != nil {
			return approval.Decision{}, err
		}
		return approval.Decision{Kind: approval.DecisionRejected, EditedText: edit}, nil
	default:
		return approval.Decision{Kind: approval.DecisionNone}, nil
	}
}

// threadReply returns the text of the latest human reply under the review
// message, or "" when the thread only holds the original post.
func (c *Client) threadReply(ctx context.Context, ref string) (string, error) {
	params := url.Values{
		"channel": {c.moderatorChannel},
		"ts":      {ref},
	}

	var resp repliesResponse
	if err := c.callForm(ctx, "conversations.replies", params, &resp); err != nil {
		return "", err
	}

	edit := ""
	for _, m := range resp.Messages {
		if m.TS == ref {
			continue // the review post itself
		}
		if strings.TrimSpace(m.Text) != "" {
			edit = strings.TrimSpace(m.Text)
		}
	}
	return edit, nil
}

// Publish sends the final threat text to the community channel. A non-empty
// editedText replaces the original description.
func (c *Client) Publish(ctx context.Context, rec *threat.Record, v *triage.Verdict, editedText string) (string, error) {
	body := rec.Description
	if editedText != "" {
		body = editedText
	}

	payload := map[string]any{
		"channel": c.communityChannel,
		"text":    rec.Title,
		"blocks":  publishBlocks(rec, v, body),
	}

	var resp postMessageResponse
	if err := c.callJSON(ctx, "chat.postMessage", payload, &resp); err != nil {
		return "", err
	}

	c.logger.Info(ctx, "published threat",
		"threat_id", rec.ID,
		"ref", resp.TS,
		"edited", editedText != "",
	)
	return resp.TS, nil
}

// Confirm posts a closing note as a thread reply under the review message.
func (c *Client) Confirm(ctx context.Context, ref, text string) error {
	payload := map[string]any{
		"channel":   c.moderatorChannel,
		"thread_ts": ref,
		"text":      text,
	}

	var resp postMessageResponse
	return c.callJSON(ctx, "chat.postMessage", payload, &resp)
}

// apiResponse is the envelope every Slack Web API response carries.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type postMessageResponse struct {
	apiResponse
	TS string `json:"ts"`
}

type reactionsResponse struct {
	apiResponse
	Message struct {
		Reactions []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"reactions"`
	} `json:"message"`
}

type repliesResponse struct {
	apiResponse
	Messages []struct {
		TS   string `json:"ts"`
		Text string `json:"text"`
	} `json:"messages"`
}

func (c *Client) callJSON(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("slack: marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	return c.do(req, method, out)
}

func (c *Client) callForm(ctx context.Context, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("slack: create %s request: %w", method, err)
	}
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req) //nolint:gosec // G704: baseURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: %s returned %d: %s", method, resp.StatusCode, string(respBody))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("slack: read %s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("slack: decode %s response: %w", method, err)
	}

	// Every response shape embeds the ok/error envelope.
	var env apiResponse
	if err := json.Unmarshal(raw, &env); err == nil && !env.OK {
		return fmt.Errorf("slack: %s failed: %s", method, env.Error)
	}
	return nil
}

func reviewBlocks(rec *threat.Record, v *triage.Verdict) []map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("%s %s: %s", priorityEmoji(v.Priority), v.Priority, rec.Title),
			},
		},
		{"type": "divider"},
		fieldsBlock(rec, v),
	}

	if desc := truncate(rec.Description, maxDescriptionLen); desc != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Description*\n\n%s", desc),
			},
		})
	}

	blocks = append(blocks,
		map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Why flagged*\n\n%s", v.Explanation),
			},
		},
		map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": bucketSummary(v)},
			},
		},
		map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": "React :white_check_mark: to approve or :x: to reject. Reply in this thread with edited text to publish a revision."},
			},
		},
	)
	return blocks
}

func fieldsBlock(rec *threat.Record, v *triage.Verdict) map[string]any {
	severity := "n/a"
	if rec.Severity != nil {
		severity = fmt.Sprintf("%.1f", *rec.Severity)
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Priority:* %s", v.Priority)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", severity)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Source trust:* %s", orDash(rec.SourceTrust))},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Date:* %s", orDash(rec.Date))},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Asset category:* %s", orDash(rec.AssetCategory))},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Buckets hit:* %d", v.BucketsHit)},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func publishBlocks(rec *threat.Record, v *triage.Verdict, body string) []map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("%s %s", priorityEmoji(v.Priority), rec.Title),
			},
		},
	}

	if body = truncate(body, maxDescriptionLen); body != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": body},
		})
	}

	blocks = append(blocks, map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("threatwatch • %s • %s", rec.ID, orDash(rec.Date))},
		},
	})
	return blocks
}

// bucketSummary renders the count vector in a fixed order so two posts for
// identical verdicts read identically.
func bucketSummary(v *triage.Verdict) string {
	names := make([]string, 0, len(v.BucketCounts))
	for name := range v.BucketCounts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, v.BucketCounts[name]))
	}
	return "bucket counts: " + strings.Join(parts, " ")
}

func priorityEmoji(p triage.Priority) string {
	switch p {
	case triage.PriorityHigh:
		return "\U0001f534" // red circle
	case triage.PriorityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
