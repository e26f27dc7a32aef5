package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"auto_social_publisher/config"
)

const postURLPrefix = "https://www.facebook.com/"

// Post is the content handed to the page: a message and optional images in
// display order.
type Post struct {
	Message string
	Images  [][]byte
}

// Receipt identifies a created page post.
type Receipt struct {
	PostID      string
	URL         string
	ScheduledAt time.Time
}

// DeliveryError is a non-success Graph API outcome. Detail is the upstream
// message, verbatim.
type DeliveryError struct {
	Op     string
	Status int
	Detail string
}

func (e *DeliveryError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("facebook %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("facebook %s: %d %s", e.Op, e.Status, e.Detail)
}

// Delivery marks the error as a delivery failure.
func (e *DeliveryError) Delivery() bool { return true }

// Facebook publishes to one page through the Graph API. Images are uploaded
// unpublished first and then attached to the feed post.
type Facebook struct {
	cfg    config.FacebookConfig
	client *http.Client
	logger *slog.Logger
}

// New validates page credentials. It makes no network call.
func New(cfg config.FacebookConfig, client *http.Client, logger *slog.Logger) (*Facebook, error) {
	if cfg.PageID == "" {
		return nil, &config.Error{Field: "facebook.page_id", Msg: "missing (set FB_PAGE_ID)"}
	}
	if cfg.AccessToken == "" {
		return nil, &config.Error{Field: "facebook.access_token", Msg: "missing (set PAGE_ACCESS_TOKEN)"}
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = "https://graph.facebook.com/v19.0"
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facebook{cfg: cfg, client: client, logger: logger}, nil
}

// Groups returns the groups configured for cross-posting.
func (f *Facebook) Groups() []config.Group {
	return append([]config.Group(nil), f.cfg.Groups...)
}

// Publish creates a live page post.
func (f *Facebook) Publish(ctx context.Context, post Post) (Receipt, error) {
	return f.createPost(ctx, post, time.Time{})
}

// Schedule creates an unpublished page post that Facebook releases at when.
func (f *Facebook) Schedule(ctx context.Context, post Post, when time.Time) (Receipt, error) {
	if when.IsZero() {
		return Receipt{}, &DeliveryError{Op: "schedule", Detail: "missing publication time"}
	}
	return f.createPost(ctx, post, when)
}

func (f *Facebook) createPost(ctx context.Context, post Post, when time.Time) (Receipt, error) {
	op := "publish"
	if !when.IsZero() {
		op = "schedule"
	}
	form := url.Values{}
	form.Set("message", post.Message)

	for i, img := range post.Images {
		id, err := f.uploadPhoto(ctx, img, i, !when.IsZero())
		if err != nil {
			return Receipt{}, err
		}
		form.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":%q}`, id))
	}
	if !when.IsZero() {
		form.Set("published", "false")
		form.Set("scheduled_publish_time", strconv.FormatInt(when.Unix(), 10))
	}

	body, err := f.postForm(ctx, op, f.cfg.PageID+"/feed", form)
	if err != nil {
		return Receipt{}, err
	}
	postID := gjson.GetBytes(body, "id").String()
	if postID == "" {
		return Receipt{}, &DeliveryError{Op: op, Detail: "response without post id: " + string(body)}
	}
	f.logger.Info("page post created", "op", op, "post_id", postID, "images", len(post.Images))
	return Receipt{PostID: postID, URL: postURLPrefix + postID, ScheduledAt: when}, nil
}

// uploadPhoto stores an image on the page without showing it, so the feed
// post can attach it. Photos for scheduled posts must be temporary.
func (f *Facebook) uploadPhoto(ctx context.Context, img []byte, idx int, temporary bool) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("source", fmt.Sprintf("image-%d.png", idx+1))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(img)); err != nil {
		return "", err
	}
	_ = writer.WriteField("published", "false")
	if temporary {
		_ = writer.WriteField("temporary", "true")
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	resp, err := f.do(ctx, "upload_photo", f.cfg.PageID+"/photos", &body, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(resp, "id").String()
	if id == "" {
		return "", &DeliveryError{Op: "upload_photo", Detail: "response without photo id: " + string(resp)}
	}
	f.logger.Debug("photo uploaded", "photo_id", id, "bytes", len(img))
	return id, nil
}

// CrossPost shares a published page post into groups concurrently. Each
// failure is returned, in group order; successes leave a nil entry.
func (f *Facebook) CrossPost(ctx context.Context, rec Receipt, groups []config.Group) []error {
	errs := make([]error, len(groups))
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(4)
	for i, group := range groups {
		g.Go(func() error {
			form := url.Values{}
			form.Set("link", rec.URL)
			_, err := f.postForm(ctx, "cross_post", group.ID+"/feed", form)
			if err != nil {
				err = fmt.Errorf("groupe %s: %w", group.Name, err)
				f.logger.Warn("cross post failed", "group", group.Name, "err", err)
			}
			mu.Lock()
			errs[i] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (f *Facebook) postForm(ctx context.Context, op, path string, form url.Values) ([]byte, error) {
	return f.do(ctx, op, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (f *Facebook) do(ctx context.Context, op, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.GraphURL+"/"+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	q := req.URL.Query()
	q.Set("access_token", f.cfg.AccessToken)
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &DeliveryError{Op: op, Detail: redactToken(err.Error(), f.cfg.AccessToken)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DeliveryError{Op: op, Status: resp.StatusCode, Detail: err.Error()}
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() || resp.StatusCode >= 300 {
		detail := msg.String()
		if detail == "" {
			detail = strings.TrimSpace(string(data))
		}
		return nil, &DeliveryError{Op: op, Status: resp.StatusCode, Detail: detail}
	}
	return data, nil
}

// redactToken keeps the page token out of transport errors, which embed the
// request URL.
func redactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, url.QueryEscape(token), "[REDACTED]")
}
