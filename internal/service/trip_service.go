package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/langchou/tripdash/internal/cache"
	"github.com/langchou/tripdash/internal/clock"
	"github.com/langchou/tripdash/internal/format"
	"github.com/langchou/tripdash/internal/models"
)

// ValidationError 请求参数不合法，在调用上游之前返回
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is required"
}

var (
	// ErrTagRequired 标签为空
	ErrTagRequired = &ValidationError{Field: "tag"}
	// ErrTripIDRequired 行程 ID 为空
	ErrTripIDRequired = &ValidationError{Field: "trip id"}
)

// IsValidation 是否为参数校验错误
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// TripSource 上游行程数据来源
type TripSource interface {
	FetchAllTrips(ctx context.Context, token string) ([]models.Trip, error)
	FetchVehicles(ctx context.Context, token string) ([]models.Vehicle, error)
	GetTrip(ctx context.Context, token, id string) (*models.Trip, error)
	TagTrip(ctx context.Context, token, id, tag string) error
	UntagTrip(ctx context.Context, token, id, tag string) error
}

// TripService 行程服务
type TripService struct {
	source TripSource
	clock  clock.Clock
	logger *zap.Logger
}

// NewTripService 创建行程服务
func NewTripService(source TripSource, clk clock.Clock, logger *zap.Logger) *TripService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TripService{
		source: source,
		clock:  clk,
		logger: logger,
	}
}

// MergedTrips 并行拉取行程和车辆并合并，不经过缓存
func (s *TripService) MergedTrips(ctx context.Context, token string, filter TripFilter) ([]models.MergedTrip, error) {
	trips, vehicles, err := s.fetch(ctx, token)
	if err != nil {
		return nil, err
	}
	return Aggregate(trips, vehicles, filter), nil
}

func (s *TripService) fetch(ctx context.Context, token string) ([]models.Trip, []models.Vehicle, error) {
	var (
		trips    []models.Trip
		vehicles []models.Vehicle
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trips, err = s.source.FetchAllTrips(gctx, token)
		return err
	})
	g.Go(func() error {
		var err error
		vehicles, err = s.source.FetchVehicles(gctx, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return trips, vehicles, nil
}

// Vehicles 拉取车辆列表
func (s *TripService) Vehicles(ctx context.Context, token string) ([]models.Vehicle, error) {
	vehicles, err := s.source.FetchVehicles(ctx, token)
	if err != nil {
		return nil, err
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	return vehicles, nil
}

// Trip 拉取单条原始行程
func (s *TripService) Trip(ctx context.Context, token, id string) (*models.Trip, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrTripIDRequired
	}
	return s.source.GetTrip(ctx, token, id)
}

// TagTrip 给行程添加标签，成功后清空会话缓存
func (s *TripService) TagTrip(ctx context.Context, token string, c *cache.Cache, id, tag string) error {
	id, tag, err := validateTag(id, tag)
	if err != nil {
		return err
	}
	if err := s.source.TagTrip(ctx, token, id, tag); err != nil {
		return err
	}
	s.invalidate(ctx, c)
	return nil
}

// UntagTrip 删除行程标签，成功后清空会话缓存
func (s *TripService) UntagTrip(ctx context.Context, token string, c *cache.Cache, id, tag string) error {
	id, tag, err := validateTag(id, tag)
	if err != nil {
		return err
	}
	if err := s.source.UntagTrip(ctx, token, id, tag); err != nil {
		return err
	}
	s.invalidate(ctx, c)
	return nil
}

func validateTag(id, tag string) (string, string, error) {
	id = strings.TrimSpace(id)
	tag = strings.TrimSpace(tag)
	if id == "" {
		return "", "", ErrTripIDRequired
	}
	if tag == "" {
		return "", "", ErrTagRequired
	}
	return id, tag, nil
}

func (s *TripService) invalidate(ctx context.Context, c *cache.Cache) {
	if c == nil {
		return
	}
	if err := c.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear session cache", zap.Error(err))
	}
}

// DashboardTrips 返回格式化后的行程，缓存新鲜时不访问上游
func (s *TripService) DashboardTrips(ctx context.Context, token string, c *cache.Cache) ([]format.FormattedTrip, error) {
	trips, err := s.loadTrips(ctx, token, c)
	if err != nil {
		return nil, err
	}
	return format.FormatTrips(trips), nil
}

// scoped 把会话缓存绑定到 token，换了账号的会话不会读到上一个账号的数据
func scoped(c *cache.Cache, token string) *cache.Cache {
	return c.ForOwner(cache.Fingerprint(token))
}

func (s *TripService) loadTrips(ctx context.Context, token string, c *cache.Cache) ([]models.MergedTrip, error) {
	c = scoped(c, token)
	now := s.clock.Now()
	if cached, ok := c.Trips(ctx, now); ok {
		return cached, nil
	}

	trips, vehicles, err := s.fetch(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}
	merged := Aggregate(trips, vehicles, nil)

	if err := c.Put(ctx, merged, vehicles, now); err != nil {
		s.logger.Warn("Failed to store trips in session cache", zap.Error(err))
	}
	s.logger.Debug("Loaded trips from upstream",
		zap.Int("trips", len(merged)),
		zap.Int("vehicles", len(vehicles)),
	)
	return merged, nil
}

// DashboardTrip 返回单条格式化行程，优先使用缓存
func (s *TripService) DashboardTrip(ctx context.Context, token string, c *cache.Cache, id string) (*format.FormattedTrip, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrTripIDRequired
	}
	if cached, ok := scoped(c, token).Trip(ctx, id); ok {
		formatted := format.FormatTrip(*cached)
		return &formatted, nil
	}

	trip, err := s.source.GetTrip(ctx, token, id)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.DashboardVehicles(ctx, token, c)
	if err != nil {
		return nil, err
	}

	merged := Aggregate([]models.Trip{*trip}, vehicles, nil)
	formatted := format.FormatTrip(merged[0])
	return &formatted, nil
}

// DashboardVehicles 返回车辆列表，缓存中有非空列表时直接返回
func (s *TripService) DashboardVehicles(ctx context.Context, token string, c *cache.Cache) ([]models.Vehicle, error) {
	c = scoped(c, token)
	if cached, ok := c.Vehicles(ctx); ok {
		return cached, nil
	}

	vehicles, err := s.Vehicles(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := c.PutVehicles(ctx, vehicles); err != nil {
		s.logger.Warn("Failed to store vehicles in session cache", zap.Error(err))
	}
	return vehicles, nil
}

// Refresh 清空缓存后重新加载
func (s *TripService) Refresh(ctx context.Context, token string, c *cache.Cache) ([]format.FormattedTrip, error) {
	s.invalidate(ctx, c)
	return s.DashboardTrips(ctx, token, c)
}
