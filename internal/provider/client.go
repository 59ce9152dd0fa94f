package provider

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "net/http"

    "github.com/rs/zerolog"
)

// TokenGetter is what the client needs from the token cache.
type TokenGetter interface {
    Token(ctx context.Context) (string, error)
}

// Client sends one message through the external provider and normalizes
// its response into an Outcome. A missing token is a Failure, not an
// error: per-recipient send paths must never crash the batch.
type Client struct {
    HTTPClient *http.Client
    BaseURL    string
    BotID      string
    Tokens     TokenGetter
    Log        zerolog.Logger
}

type templateSendRequest struct {
    Recipient string `json:"recipient"`
    Template  string `json:"template"`
    BotID     string `json:"bot_id"`
}

type rawSendRequest struct {
    Recipient string `json:"recipient"`
    Text      string `json:"text"`
}

// Send issues a template send. Callers should treat a Failure outcome,
// or a success without a message id, as the trigger for the raw-text
// fallback: template names can be stale or rejected by the provider
// independent of recipient validity.
func (c *Client) Send(ctx context.Context, recipient, templateName string) Outcome {
    return c.post(ctx, "/v1/messages/template", templateSendRequest{
        Recipient: recipient,
        Template:  templateName,
        BotID:     c.BotID,
    })
}

// SendRaw issues a freeform text send.
func (c *Client) SendRaw(ctx context.Context, recipient, text string) Outcome {
    return c.post(ctx, "/v1/messages/text", rawSendRequest{
        Recipient: recipient,
        Text:      text,
    })
}

func (c *Client) post(ctx context.Context, path string, payload any) Outcome {
    token, err := c.Tokens.Token(ctx)
    if err != nil {
        return Failure("no provider token: " + err.Error())
    }

    body, err := json.Marshal(payload)
    if err != nil {
        return Failure("encoding request: " + err.Error())
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
    if err != nil {
        return Failure("building request: " + err.Error())
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("Authorization", "Bearer "+token)

    resp, err := c.httpClient().Do(req)
    if err != nil {
        return Failure("provider request failed: " + err.Error())
    }
    defer resp.Body.Close()

    raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
    if err != nil {
        return Failure("reading provider response: " + err.Error())
    }

    if resp.StatusCode == http.StatusUnauthorized {
        // A revoked credential fails every send the same way until the
        // cached token is dropped; the next cycle then re-authenticates.
        if inv, ok := c.Tokens.(interface{ Invalidate() }); ok {
            inv.Invalidate()
        }
    }

    out := Normalize(resp.StatusCode, raw)
    if !out.OK {
        c.Log.Debug().Str("path", path).Str("reason", out.Reason).Msg("provider send failed")
    }
    return out
}

func (c *Client) httpClient() *http.Client {
    if c.HTTPClient != nil {
        return c.HTTPClient
    }
    return http.DefaultClient
}
