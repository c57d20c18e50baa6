package service

import (
	"slices"
	"strings"

	"github.com/langchou/tripdash/internal/models"
)

// TripFilter 行程 ID 集合，nil 表示不过滤
type TripFilter map[string]struct{}

// ParseTripIDs 解析逗号分隔的行程 ID，空串返回 nil
func ParseTripIDs(s string) TripFilter {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	filter := make(TripFilter)
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter[id] = struct{}{}
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// Contains 是否包含该 ID
func (f TripFilter) Contains(id string) bool {
	_, ok := f[id]
	return ok
}

// Aggregate 合并行程与车辆信息，按 filter 过滤，按开始时间倒序排列
//
// 纯函数：不修改入参。找不到的车辆以空 Vehicle 代替。
// 开始时间相同的行程保持上游的相对顺序。
func Aggregate(trips []models.Trip, vehicles []models.Vehicle, filter TripFilter) []models.MergedTrip {
	byRef := make(map[string]models.Vehicle, len(vehicles)*2)
	for _, v := range vehicles {
		if v.ID != "" {
			byRef[v.ID] = v
		}
		if v.URL != "" {
			byRef[v.URL] = v
		}
	}

	merged := make([]models.MergedTrip, 0, len(trips))
	for _, t := range trips {
		if filter != nil && !filter.Contains(t.ID) {
			continue
		}
		merged = append(merged, models.MergedTrip{
			Trip:    t,
			Vehicle: byRef[t.VehicleRef],
		})
	}

	slices.SortStableFunc(merged, func(a, b models.MergedTrip) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return merged
}
