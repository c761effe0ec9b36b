package email

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultAPIURL = "https://api.postmarkapp.com"

type Client struct {
	serverToken string
	fromEmail   string
	appURL      string
	http        *resty.Client
}

type Option func(*Client)

// WithAPIURL points the client at another Postmark-compatible endpoint.
func WithAPIURL(url string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(url)
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		base := c.http.BaseURL
		c.http = newRestyClient(resty.NewWithClient(hc), base)
	}
}

// NewClient builds a Postmark sender. appURL is where invite links point.
func NewClient(serverToken, fromEmail, appURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		appURL:      appURL,
		http:        newRestyClient(resty.New(), defaultAPIURL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newRestyClient(rc *resty.Client, baseURL string) *resty.Client {
	return rc.
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

type postmarkError struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Invite is what an invitation e-mail says.
type Invite struct {
	InviteID       string
	HouseholdName  string
	InvitedByEmail string
	InviteeEmail   string
}

// SendHouseholdInvite tells the invitee about a pending invitation.
func (c *Client) SendHouseholdInvite(ctx context.Context, inv Invite) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	inviter := inv.InvitedByEmail
	if inviter == "" {
		inviter = "Someone"
	}
	link := fmt.Sprintf("%s/invitations/%s", c.appURL, inv.InviteID)
	subject := fmt.Sprintf("You've been invited to %s on Frostbox", inv.HouseholdName)
	textBody := fmt.Sprintf(
		"%s invited you to share the freezer of %s.\n\nOpen the link below to accept or decline:\n\n%s",
		inviter, inv.HouseholdName, link,
	)
	htmlBody := fmt.Sprintf(
		`<p>%s invited you to share the freezer of <strong>%s</strong>.</p><p><a href="%s">Accept or decline the invitation</a></p>`,
		inviter, inv.HouseholdName, link,
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       inv.InviteeEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	var apiErr postmarkError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Postmark-Server-Token", c.serverToken).
		SetBody(payload).
		SetError(&apiErr).
		Post("/email")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode())
	}
	return nil
}
