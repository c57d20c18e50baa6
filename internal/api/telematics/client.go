package telematics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/langchou/tripdash/internal/metrics"
	"github.com/langchou/tripdash/internal/models"
)

// DefaultPageSize 上游分页大小
const DefaultPageSize = 25

// Options 客户端选项
type Options struct {
	PageSize           int
	PageConcurrency    int // 并发拉取分页的上限，0 表示不限制
	Timeout            time.Duration
	BreakerMaxFailures int // 连续失败多少次后熔断，0 表示不启用
	BreakerTimeout     time.Duration
	Metrics            *metrics.Metrics
	Logger             *zap.Logger
}

// Client 车联网 API 客户端
type Client struct {
	httpClient      *http.Client
	apiHost         string
	pageSize        int
	pageConcurrency int
	breaker         *gobreaker.CircuitBreaker[[]byte]
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

// NewClient 创建新的车联网 API 客户端
func NewClient(apiHost string, opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		apiHost:         strings.TrimRight(apiHost, "/"),
		pageSize:        opts.PageSize,
		pageConcurrency: opts.PageConcurrency,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
	}

	if opts.BreakerMaxFailures > 0 {
		maxFailures := uint32(opts.BreakerMaxFailures)
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "telematics-api",
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			// 断路器由所有会话共享，只统计上游自身的故障；
			// 404、单个 token 的 401/403、429 和调用方取消都不计入
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrNotFound) ||
					errors.Is(err, ErrUnauthorized) ||
					errors.Is(err, ErrRateLimited) ||
					errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("Circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	return c
}

// PageSize 返回分页大小
func (c *Client) PageSize() int {
	return c.pageSize
}

// PageCount 根据总数计算页数
func PageCount(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// FetchAllTrips 拉取当前用户的全部行程
//
// 先拉第 1 页得到总数，再并发拉取 2..N 页；结果按页码顺序拼接。
// 任意一页失败则整体失败，返回第一个错误。
func (c *Client) FetchAllTrips(ctx context.Context, token string) ([]models.Trip, error) {
	first, err := c.fetchTripPage(ctx, token, 1)
	if err != nil {
		return nil, err
	}

	pages := PageCount(first.Metadata.Count, c.pageSize)
	if pages <= 1 {
		if first.Results == nil {
			return []models.Trip{}, nil
		}
		return first.Results, nil
	}

	// 每页一个槽位，完成顺序不影响拼接顺序
	slots := make([][]models.Trip, pages-1)

	g, gctx := errgroup.WithContext(ctx)
	if c.pageConcurrency > 0 {
		g.SetLimit(c.pageConcurrency)
	}
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			p, err := c.fetchTripPage(gctx, token, page)
			if err != nil {
				return err
			}
			slots[page-2] = p.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trips := make([]models.Trip, 0, first.Metadata.Count)
	trips = append(trips, first.Results...)
	for _, s := range slots {
		trips = append(trips, s...)
	}

	c.logger.Debug("Fetched all trips",
		zap.Int("pages", pages),
		zap.Int("count", first.Metadata.Count),
		zap.Int("received", len(trips)),
	)

	return trips, nil
}

// fetchTripPage 拉取单页行程
func (c *Client) fetchTripPage(ctx context.Context, token string, page int) (*models.TripPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(page))

	body, err := c.doRequest(ctx, token, "trips", http.MethodGet, "/trip/?"+q.Encode(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("fetch trip page %d: %w", page, err)
	}

	var p models.TripPage
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode trip page %d: %w", page, err)
	}
	return &p, nil
}

// FetchVehicles 获取车辆列表（不分页）
func (c *Client) FetchVehicles(ctx context.Context, token string) ([]models.Vehicle, error) {
	body, err := c.doRequest(ctx, token, "vehicles", http.MethodGet, "/vehicle/", nil, "")
	if err != nil {
		return nil, fmt.Errorf("fetch vehicles: %w", err)
	}

	var list models.VehicleList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	if list.Results == nil {
		return []models.Vehicle{}, nil
	}
	return list.Results, nil
}

// GetTrip 获取单个行程
func (c *Client) GetTrip(ctx context.Context, token, id string) (*models.Trip, error) {
	body, err := c.doRequest(ctx, token, "trip", http.MethodGet, "/trip/"+url.PathEscape(id), nil, "")
	if err != nil {
		return nil, fmt.Errorf("get trip %s: %w", id, err)
	}

	var trip models.Trip
	if err := json.Unmarshal(body, &trip); err != nil {
		return nil, fmt.Errorf("decode trip %s: %w", id, err)
	}
	return &trip, nil
}

// TagTrip 给行程打标签
func (c *Client) TagTrip(ctx context.Context, token, id, tag string) error {
	form := url.Values{}
	form.Set("tag", tag)

	path := "/trip/" + url.PathEscape(id) + "/tag/"
	if _, err := c.doRequest(ctx, token, "tag", http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"); err != nil {
		return fmt.Errorf("tag trip %s: %w", id, err)
	}
	return nil
}

// UntagTrip 删除行程标签
func (c *Client) UntagTrip(ctx context.Context, token, id, tag string) error {
	path := "/trip/" + url.PathEscape(id) + "/tag/" + url.PathEscape(tag) + "/"
	if _, err := c.doRequest(ctx, token, "untag", http.MethodDelete, path, nil, ""); err != nil {
		return fmt.Errorf("untag trip %s: %w", id, err)
	}
	return nil
}

// doRequest 执行带认证的请求，返回响应体
func (c *Client) doRequest(ctx context.Context, token, endpoint, method, path string, body io.Reader, contentType string) ([]byte, error) {
	if token == "" {
		return nil, &RequestError{Op: endpoint, Err: ErrUnauthorized}
	}

	do := func() ([]byte, error) {
		return c.send(ctx, token, endpoint, method, path, body, contentType)
	}
	if c.breaker == nil {
		return do()
	}
	return c.breaker.Execute(do)
}

func (c *Client) send(ctx context.Context, token, endpoint, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, body)
	if err != nil {
		return nil, &RequestError{Op: endpoint, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "TripDash/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe(endpoint, resp, start)
	if err != nil {
		return nil, &RequestError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(endpoint, resp.StatusCode, data)
	}

	return data, nil
}

// observe 记录上游请求指标
func (c *Client) observe(endpoint string, resp *http.Response, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
