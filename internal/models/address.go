package models

// Address 上游返回的地址信息
type Address struct {
	Name        string  `json:"name,omitempty"`         // 原始完整地址
	DisplayName string  `json:"display_name,omitempty"` // 用户自定义名称
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	Cleaned     string  `json:"cleaned,omitempty"` // 清洗后的地址（去掉国家、邮编）
}

// Label 返回用于展示的地址：优先用户自定义名称，其次原始地址
func (a *Address) Label() string {
	if a == nil {
		return ""
	}
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}
