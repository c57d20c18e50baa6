package models

import "time"

// Trip 上游行程记录
//
// 可选数值字段使用指针，nil 表示上游未返回该字段
type Trip struct {
	ID              string    `json:"id"`
	URL             string    `json:"url,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	StartTimezone   string    `json:"start_timezone,omitempty"` // IANA 时区名
	EndTimezone     string    `json:"end_timezone,omitempty"`
	StartAddress    *Address  `json:"start_address,omitempty"`
	EndAddress      *Address  `json:"end_address,omitempty"`
	DistanceM       float64   `json:"distance_m"`                   // 米
	DurationS       float64   `json:"duration_s"`                   // 秒
	FuelVolumeL     *float64  `json:"fuel_volume_l,omitempty"`      // 升
	FuelCostUSD     *float64  `json:"fuel_cost_usd,omitempty"`      // 美元
	AverageKMPL     *float64  `json:"average_kmpl,omitempty"`       // 公里/升
	HardBrakes      *int      `json:"hard_brakes,omitempty"`        // 急刹车次数
	HardAccels      *int      `json:"hard_accels,omitempty"`        // 急加速次数
	DurationOver70S *float64  `json:"duration_over_70_s,omitempty"` // 超过 70 mph 的秒数
	VehicleRef      string    `json:"vehicle,omitempty"`            // 车辆 ID 或 URL
	Tags            []string  `json:"tags,omitempty"`
}

// MergedTrip 关联了车辆信息的行程
//
// Vehicle 覆盖 Trip 中的 vehicle 字段；未能关联时为空对象 {}
type MergedTrip struct {
	Trip
	Vehicle Vehicle `json:"vehicle"`
}

// TripPage 上游分页响应
type TripPage struct {
	Results  []Trip       `json:"results"`
	Metadata PageMetadata `json:"_metadata"`
}

// PageMetadata 分页元数据
type PageMetadata struct {
	Count    int     `json:"count"`
	Next     *string `json:"next,omitempty"`
	Previous *string `json:"previous,omitempty"`
}
