// Package figma is the fetch collaborator: it talks to the design API,
// classifies failures into the shared error taxonomy once at this boundary,
// and emits retry/rate-limit events for observability.
package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "sentinel/internal/errors"
	"sentinel/internal/events"
	shared "sentinel/shared/types"
	"sentinel/shared/utils"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.figma.com"

// Client fetches raw node payloads and rendered images.
type Client struct {
	http    *resty.Client
	logger  *zap.Logger
	emitter events.Emitter
}

// Options configures the API client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	Logger     *zap.Logger
	Emitter    events.Emitter
}

func NewClient(token string, opts Options) (*Client, error) {
	if token == "" {
		return nil, apperrors.Validation("API token is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryCount == 0 {
		opts.RetryCount = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Nop{}
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("X-Figma-Token", token).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(30 * time.Second)

	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == 429 || r.StatusCode() >= 500
	})

	c := &Client{http: client, logger: opts.Logger, emitter: opts.Emitter}

	client.AddRetryHook(func(r *resty.Response, err error) {
		event := events.Event{Type: events.TypeRetry}
		if r != nil {
			event.Attempt = r.Request.Attempt
			if r.StatusCode() == 429 {
				event.Type = events.TypeRateLimited
				event.RetryAfterSec = retryAfter(r)
			}
		}
		c.emitter.Emit(events.Stamp(event))
		c.logger.Warn("retrying request",
			zap.String("type", string(event.Type)),
			zap.Int("attempt", event.Attempt),
			zap.Error(err))
	})

	return c, nil
}

type nodesResponse struct {
	Nodes map[string]struct {
		Document shared.RawNode `json:"document"`
	} `json:"nodes"`
}

// GetNodes fetches raw payloads for the given node ids. The returned map is
// keyed by node id; ids the API does not know are simply absent.
func (c *Client) GetNodes(ctx context.Context, fileKey string, nodeIDs []string) (map[string]shared.RawNode, error) {
	if fileKey == "" || len(nodeIDs) == 0 {
		return nil, apperrors.Validation("file key and node ids are required")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(nodeIDs, ",")).
		Get("/v1/files/" + fileKey + "/nodes")
	if err != nil {
		return nil, apperrors.Network(err).WithNode(fileKey, "")
	}
	if !resp.IsSuccess() {
		return nil, classify(resp).WithNode(fileKey, "")
	}

	var parsed nodesResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("malformed nodes response: %v", err)).WithNode(fileKey, "")
	}

	nodes := make(map[string]shared.RawNode, len(parsed.Nodes))
	for id, wrapper := range parsed.Nodes {
		if wrapper.Document != nil {
			nodes[id] = wrapper.Document
		}
	}
	return nodes, nil
}

type imagesResponse struct {
	Err    any               `json:"err"`
	Images map[string]string `json:"images"`
}

// GetImageURLs asks the API to render the given nodes and returns the
// short-lived download URLs, keyed by node id.
func (c *Client) GetImageURLs(ctx context.Context, fileKey string, nodeIDs []string, format string) (map[string]string, error) {
	if format == "" {
		format = "png"
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":    strings.Join(nodeIDs, ","),
			"format": format,
		}).
		Get("/v1/images/" + fileKey)
	if err != nil {
		return nil, apperrors.Network(err).WithNode(fileKey, "")
	}
	if !resp.IsSuccess() {
		return nil, classify(resp).WithNode(fileKey, "")
	}

	var parsed imagesResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("malformed images response: %v", err)).WithNode(fileKey, "")
	}
	if parsed.Err != nil {
		return nil, apperrors.Server(resp.StatusCode(), fmt.Sprintf("%v", parsed.Err)).WithNode(fileKey, "")
	}
	return parsed.Images, nil
}

// ExportNodeImages downloads rendered images into dir, one file per node,
// named <sanitizedKey>-<suffix>.png. Returns the path per node id.
func (c *Client) ExportNodeImages(ctx context.Context, fileKey string, nodeIDs []string, dir, suffix string) (map[string]string, error) {
	urls, err := c.GetImageURLs(ctx, fileKey, nodeIDs, "png")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Storage("creating images directory", err)
	}

	paths := make(map[string]string, len(urls))
	for nodeID, url := range urls {
		if url == "" {
			continue
		}
		key, err := utils.SanitizeKey(fileKey, nodeID)
		if err != nil {
			return nil, apperrors.Storage("sanitizing image key", err).WithNode(fileKey, nodeID)
		}

		dest := filepath.Join(dir, fmt.Sprintf("%s-%s.png", key, suffix))
		if err := c.download(ctx, url, dest); err != nil {
			return nil, err
		}
		paths[nodeID] = dest
	}
	return paths, nil
}

func (c *Client) download(ctx context.Context, url, dest string) error {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return apperrors.Network(err)
	}
	if !resp.IsSuccess() {
		return classify(resp)
	}
	if err := os.WriteFile(dest, resp.Body(), 0644); err != nil {
		return apperrors.Storage("writing image file", err)
	}
	return nil
}

// apiError covers both error body shapes the API produces. It is decoded
// once here; downstream code only ever sees the tagged taxonomy error.
type apiError struct {
	Status        int    `json:"status"`
	Err           string `json:"err"`
	Message       string `json:"message"`
	RetryAfter    int    `json:"retryAfter"`
	PlanTier      string `json:"planTier"`
	RateLimitType string `json:"rateLimitType"`
	UpgradeLink   string `json:"upgradeLink"`
}

func (e apiError) text(fallback string) string {
	if e.Err != "" {
		return e.Err
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

func classify(resp *resty.Response) *apperrors.Error {
	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)

	status := resp.StatusCode()
	switch {
	case status == 400:
		return apperrors.Validation(body.text("bad request"))
	case status == 401 || status == 403:
		return apperrors.Authentication(body.text("check token and scopes"))
	case status == 404:
		return apperrors.NotFound(body.text("file or node does not exist"))
	case status == 429:
		wait := body.RetryAfter
		if wait == 0 {
			wait = retryAfter(resp)
		}
		err := apperrors.RateLimited(body.text("too many requests"), wait)
		err.PlanTier = body.PlanTier
		err.RateLimitType = body.RateLimitType
		err.UpgradeLink = body.UpgradeLink
		return err
	case status >= 500:
		return apperrors.Server(status, body.text("upstream failure"))
	default:
		return apperrors.Server(status, body.text("unexpected response"))
	}
}

func retryAfter(resp *resty.Response) int {
	header := resp.Header().Get("Retry-After")
	if header == "" {
		return 0
	}
	sec, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return sec
}
