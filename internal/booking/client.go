// Package booking talks to the booking site the way a browser does: it
// fetches form pages, extracts rotating anti-forgery tokens and submits
// bookings in a two-phase flow (discover, then submit).
package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"bigzbot/internal/models"
)

const (
	userAgent          = "bigzbot/1.0"
	confirmationPhrase = "Ваше бронирование принято"
	snippetLimit       = 300
	maxResponseBytes   = 1 << 20
)

// ResponseClassifier decides whether a final POST response is a successful
// booking. The site returns 200 for both success and validation-failure
// pages, so classification cannot rely on HTTP status alone.
type ResponseClassifier interface {
	Success(status int, body string) bool
}

// PhraseClassifier recognizes success by a fixed confirmation phrase in the
// response body.
type PhraseClassifier struct {
	Phrase string
}

func (p PhraseClassifier) Success(_ int, body string) bool {
	return strings.Contains(body, p.Phrase)
}

// Client performs the two-phase booking interaction against the site.
// It holds no mutable state between calls; every Submit gets its own
// cookie jar so concurrent submissions never share tokens or cookies.
type Client struct {
	baseURL    string
	timeout    time.Duration
	classifier ResponseClassifier
	http       *http.Client
	logger     *zerolog.Logger
}

// NewClient constructs a client for the booking site at baseURL.
func NewClient(baseURL string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    15 * time.Second,
		classifier: PhraseClassifier{Phrase: confirmationPhrase},
		http:       &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// UseClassifier swaps the response classifier (used by tests).
func (c *Client) UseClassifier(cl ResponseClassifier) {
	c.classifier = cl
}

// Discover fetches the availability page for (room, date) and returns the
// offered slot options in page order. A page without availability markers is
// a valid empty result, not an error.
func (c *Client) Discover(ctx context.Context, roomID int64, date string) ([]models.SlotOption, error) {
	endpoint := fmt.Sprintf("%s/?room=%d&date=%s", c.baseURL, roomID, url.QueryEscape(date))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &FetchError{Op: "discover slots", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Op: "discover slots", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Op: "discover slots", Status: resp.StatusCode}
	}

	slots, err := parseAvailableSlots(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &FetchError{Op: "discover slots", Err: err}
	}

	c.logger.Debug().Int64("room", roomID).Str("date", date).Int("slots", len(slots)).
		Msg("availability discovered")
	return slots, nil
}

// Submit performs one booking attempt: fetch the final form, extract the
// anti-forgery token, POST the payload and classify the response. Every
// failure mode is converted into a user-safe result; no error escapes to
// the dialog driver. Idempotence is not guaranteed: the caller must not
// blindly retry a lost response.
func (c *Client) Submit(ctx context.Context, req *models.BookingRequest) models.BookingResult {
	requestID := uuid.New().String()
	logger := c.logger.With().Str("request_id", requestID).Int64("room", req.RoomID).
		Str("date", req.Date).Logger()

	message, err := c.submit(ctx, req, &logger)
	if err == nil {
		logger.Info().Msg("booking submitted")
		return models.BookingResult{Success: true, Message: message}
	}

	var subErr *SubmissionError
	switch {
	case errors.Is(err, ErrTokenMissing):
		logger.Warn().Msg("token missing, slots likely taken")
		return models.BookingResult{
			Success: false,
			Message: "Похоже, выбранные слоты уже заняты. Попробуйте выбрать другую дату или время.",
		}
	case errors.As(err, &subErr):
		logger.Warn().Int("status", subErr.Status).Str("snippet", subErr.Snippet).
			Msg("submission rejected by site")
		return models.BookingResult{
			Success: false,
			Message: "Сайт не принял заявку. Проверьте данные и попробуйте ещё раз.",
		}
	default:
		logger.Error().Err(err).Msg("booking submission failed")
		return models.BookingResult{
			Success: false,
			Message: "Не удалось связаться с сайтом бронирования. Попробуйте позже.",
		}
	}
}

func (c *Client) submit(ctx context.Context, req *models.BookingRequest, logger *zerolog.Logger) (string, error) {
	// Cookie jar lives for exactly one submission attempt.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("cookie jar: %w", err)
	}
	hc := &http.Client{Timeout: c.timeout, Jar: jar}

	joined := strings.Join(req.Slots, ",")
	params := url.Values{}
	params.Set("room", strconv.FormatInt(req.RoomID, 10))
	params.Set("date", req.Date)
	params.Set("time", joined)
	pageURL := fmt.Sprintf("%s/final/?%s", c.baseURL, params.Encode())

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", &FetchError{Op: "fetch final form", Err: err}
	}
	getReq.Header.Set("User-Agent", userAgent)

	getResp, err := hc.Do(getReq)
	if err != nil {
		return "", &FetchError{Op: "fetch final form", Err: err}
	}
	defer getResp.Body.Close()

	if getResp.StatusCode != http.StatusOK {
		return "", &FetchError{Op: "fetch final form", Status: getResp.StatusCode}
	}

	root, err := html.Parse(io.LimitReader(getResp.Body, maxResponseBytes))
	if err != nil {
		return "", &FetchError{Op: "parse final form", Err: err}
	}

	token := findToken(root)
	if token == "" {
		return "", ErrTokenMissing
	}
	logger.Debug().Str("token", truncate(token, 8)).Msg("anti-forgery token extracted")

	endpoint := c.resolveAction(pageURL, findFormAction(root))

	form := url.Values{}
	form.Set(tokenField, token)
	form.Set("room", strconv.FormatInt(req.RoomID, 10))
	form.Set("date", req.Date)
	form.Set("time", joined)
	form.Set("name", req.Name)
	form.Set("phone", req.Phone)
	form.Set("comment", req.Comment)
	form.Set("consent", "on")

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &FetchError{Op: "submit booking", Err: err}
	}
	postReq.Header.Set("User-Agent", userAgent)
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postReq.Header.Set("Referer", pageURL)

	postResp, err := hc.Do(postReq)
	if err != nil {
		return "", &FetchError{Op: "submit booking", Err: err}
	}
	defer postResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(postResp.Body, maxResponseBytes))
	if err != nil {
		return "", &FetchError{Op: "read submission response", Err: err}
	}

	if !c.classifier.Success(postResp.StatusCode, string(body)) {
		return "", &SubmissionError{
			Status:  postResp.StatusCode,
			Snippet: truncate(string(body), snippetLimit),
		}
	}

	localized, err := FormatDateRu(req.Date)
	if err != nil {
		localized = req.Date
	}
	selected := req.SelectedOptions()
	return buildReceipt(req, localized, c.totalPrice(selected), selected), nil
}

// resolveAction resolves the form's declared action against the page URL;
// the site may route submissions to a different path depending on room and
// date. An absent action falls back to the page itself.
func (c *Client) resolveAction(pageURL, action string) string {
	if action == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	ref, err := url.Parse(action)
	if err != nil {
		return pageURL
	}
	return base.ResolveReference(ref).String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
