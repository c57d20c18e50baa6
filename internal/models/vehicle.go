package models

import "strconv"

// Vehicle 用户账户下的车辆
//
// 所有字段均为 omitempty，零值序列化为 {}
type Vehicle struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	Submodel    string `json:"submodel,omitempty"`
	Year        int    `json:"year,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Color       string `json:"color,omitempty"`
	FuelGrade   string `json:"fuel_grade,omitempty"`
}

// IsZero 是否为未关联的空车辆
func (v Vehicle) IsZero() bool {
	return v == Vehicle{}
}

// Name 车辆展示名称
func (v Vehicle) Name() string {
	if v.DisplayName != "" {
		return v.DisplayName
	}
	name := v.Make
	if v.Model != "" {
		if name != "" {
			name += " "
		}
		name += v.Model
	}
	if v.Year != 0 && name != "" {
		name = strconv.Itoa(v.Year) + " " + name
	}
	return name
}

// VehicleList 上游车辆列表响应
type VehicleList struct {
	Results []Vehicle `json:"results"`
}
