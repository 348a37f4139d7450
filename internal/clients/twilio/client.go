package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/ctxutil"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/httpx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client pushes outbound WhatsApp messages. Inbound replies go back as TwiML instead.
type Client interface {
	// SendTemplate pushes a pre-approved content template (the quick-reply menu).
	SendTemplate(ctx context.Context, to, contentSID string) (*Message, error)
}

type Config struct {
	AccountSID string
	AuthToken  string
	// From is the WhatsApp sender, e.g. "whatsapp:+14155238886".
	From       string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Configured reports whether the credentials and sender are all present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.AuthToken) != "" &&
		strings.TrimSpace(c.From) != ""
}

type client struct {
	log        *logger.Logger
	cfg        Config
	endpoint   string
	httpClient *http.Client
	backoff    time.Duration
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.AccountSID = strings.TrimSpace(cfg.AccountSID)
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	cfg.From = strings.TrimSpace(cfg.From)
	switch {
	case cfg.AccountSID == "":
		return nil, fmt.Errorf("missing TWILIO_ACCOUNT_SID")
	case cfg.AuthToken == "":
		return nil, fmt.Errorf("missing TWILIO_AUTH_TOKEN")
	case cfg.From == "":
		return nil, fmt.Errorf("missing TWILIO_WHATSAPP_NUMBER")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &client{
		log:        log.With("client", "TwilioClient"),
		cfg:        cfg,
		endpoint:   fmt.Sprintf("%s/Accounts/%s/Messages.json", base, url.PathEscape(cfg.AccountSID)),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    time.Second,
	}, nil
}

// Message is the subset of the Messages resource MEDI logs.
type Message struct {
	SID          string  `json:"sid"`
	To           string  `json:"to"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func (c *client) SendTemplate(ctx context.Context, to, contentSID string) (*Message, error) {
	to = strings.TrimSpace(to)
	contentSID = strings.TrimSpace(contentSID)
	if to == "" {
		return nil, fmt.Errorf("twilio: recipient required")
	}
	if contentSID == "" {
		return nil, fmt.Errorf("twilio: content template required")
	}
	form := url.Values{
		"To":         {to},
		"From":       {c.cfg.From},
		"ContentSid": {contentSID},
	}
	msg, err := c.post(ctx, form)
	if err != nil {
		return nil, err
	}
	c.log.Debug("Template queued", "sid", msg.SID, "status", msg.Status)
	return msg, nil
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPError is a non-2xx answer from the Messages API.
type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio http %d: %s (code=%d)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("twilio http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// post retries 429 and 5xx with exponential backoff, honouring Retry-After.
func (c *client) post(ctx context.Context, form url.Values) (*Message, error) {
	ctx = ctxutil.Default(ctx)
	wait := c.backoff
	for attempt := 0; ; attempt++ {
		msg, resp, err := c.postOnce(ctx, form)
		if err == nil {
			return msg, nil
		}
		if attempt >= c.cfg.MaxRetries || !httpx.IsRetryableError(err) {
			return nil, err
		}
		sleep := httpx.JitterSleep(httpx.RetryAfterDuration(resp, wait, 10*time.Second))
		c.log.Warn("Twilio send retrying", "attempt", attempt+1, "sleep", sleep.String(), "error", err)
		if err := httpx.Sleep(ctx, sleep); err != nil {
			return nil, err
		}
		wait *= 2
	}
}

func (c *client) postOnce(ctx context.Context, form url.Values) (*Message, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp, err
	}

	if resp.StatusCode/100 != 2 {
		herr := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Message != "" {
			herr.Code, herr.Message = ae.Code, ae.Message
		}
		if herr.Message == "" {
			herr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, resp, herr
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, resp, fmt.Errorf("twilio: decode message: %w", err)
	}
	return &msg, resp, nil
}
