// Package export 将合并后的行程导出为 JSON 或 CSV
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/langchou/tripdash/internal/format"
	"github.com/langchou/tripdash/internal/models"
)

// fieldNames CSV 表头，顺序固定，导入表格的用户依赖该顺序
var fieldNames = []string{
	"Trip ID",
	"Vehicle",
	"Start Location",
	"Start Time",
	"End Location",
	"End Time",
	"Distance (mi)",
	"Duration (min)",
	"Fuel Cost (USD)",
	"Average MPG",
	"Fuel Volume (gal)",
	"Hard Accelerations",
	"Hard Brakes",
	"Duration Over 70 mph (secs)",
	"Tags",
}

// FieldNames 返回 CSV 表头副本
func FieldNames() []string {
	return append([]string(nil), fieldNames...)
}

// WriteJSON 原样输出 JSON 数组
func WriteJSON(w io.Writer, trips []models.MergedTrip) error {
	if trips == nil {
		trips = []models.MergedTrip{}
	}
	if err := json.NewEncoder(w).Encode(trips); err != nil {
		return fmt.Errorf("encode trips: %w", err)
	}
	return nil
}

// Rows 表头 + 每个行程一行
func Rows(trips []models.MergedTrip) [][]string {
	rows := make([][]string, 0, len(trips)+1)
	rows = append(rows, FieldNames())
	for _, t := range trips {
		rows = append(rows, Row(t))
	}
	return rows
}

// Row 按表头顺序投影单个行程
func Row(t models.MergedTrip) []string {
	return []string{
		t.ID,
		t.Vehicle.Name(),
		t.StartAddress.Label(),
		localTime(t.StartedAt, t.StartTimezone),
		t.EndAddress.Label(),
		localTime(t.EndedAt, t.EndTimezone),
		strconv.FormatFloat(t.DistanceM/format.MetersPerMile, 'f', 2, 64),
		strconv.FormatFloat(t.DurationS/60, 'f', 1, 64),
		optFloat(t.FuelCostUSD, 1, 2),
		optFloat(t.AverageKMPL, format.KMPLToMPG, 2),
		optFloat(t.FuelVolumeL, 1/format.LitersPerUSGallon, 3),
		optInt(t.HardAccels),
		optInt(t.HardBrakes),
		optFloat(t.DurationOver70S, 1, 0),
		strings.Join(t.Tags, ";"),
	}
}

// WriteCSV 输出 CSV，引号与分隔符转义由 encoding/csv 处理
func WriteCSV(w io.Writer, trips []models.MergedTrip) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(trips)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func localTime(t time.Time, tz string) string {
	if t.IsZero() {
		return ""
	}
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		t = t.In(loc)
	}
	return t.Format(time.RFC3339)
}

func optFloat(v *float64, factor float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v*factor, 'f', prec, 64)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
