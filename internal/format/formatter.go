// Package format 将合并后的行程转换为展示字段，不做任何 I/O
package format

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // 容器内可能没有系统时区库

	"github.com/dustin/go-humanize"

	"github.com/langchou/tripdash/internal/models"
)

// OK 次数为 0 或缺失时的展示值
const OK = "ok"

// 展示分类
const (
	ClassNoHardBrakes   = "noHardBrakes"
	ClassSomeHardBrakes = "someHardBrakes"
	ClassNoHardAccels   = "noHardAccels"
	ClassSomeHardAccels = "someHardAccels"
	ClassNoSpeeding     = "noSpeeding"
	ClassSomeSpeeding   = "someSpeeding"
)

// 单位换算
const (
	MetersPerMile     = 1609.344
	LitersPerUSGallon = 3.785411784
	KMPLToMPG         = 2.352145833
)

const (
	dateLayout = "Jan 2, 2006"
	timeLayout = "3:04 PM"
)

// Display 行程展示字段
type Display struct {
	Title           string `json:"title"`
	DayOfWeek       string `json:"day_of_week"`
	StartedAtTime   string `json:"started_at_time"`
	StartedAtDate   string `json:"started_at_date"`
	EndedAtTime     string `json:"ended_at_time"`
	EndedAtDate     string `json:"ended_at_date"`
	StartAddress    string `json:"start_address"`
	EndAddress      string `json:"end_address"`
	Duration        string `json:"duration"`
	Distance        string `json:"distance"`
	AverageMPG      string `json:"average_mpg"`
	FuelCost        string `json:"fuel_cost_usd"`
	FuelVolumeUSGal string `json:"fuel_volume_usgal"`
	HardBrakesClass string `json:"hard_brakes_class"`
	HardBrakes      string `json:"hard_brakes"`
	HardAccelsClass string `json:"hard_accels_class"`
	HardAccels      string `json:"hard_accels"`
	SpeedingClass   string `json:"speeding_class"`
	Speeding        string `json:"speeding"`
}

// FormattedTrip 带展示字段的行程
type FormattedTrip struct {
	models.MergedTrip
	Display Display `json:"display"`
}

// FormatTrip 计算展示字段
//
// 地址会复制后再写入 Cleaned，不修改入参引用的数据。
func FormatTrip(t models.MergedTrip) FormattedTrip {
	t.StartAddress = cleanedCopy(t.StartAddress)
	t.EndAddress = cleanedCopy(t.EndAddress)

	startLoc := location(t.StartTimezone)
	endLoc := location(t.EndTimezone)
	started := t.StartedAt.In(startLoc)
	ended := t.EndedAt.In(endLoc)

	d := Display{
		DayOfWeek:     started.Weekday().String(),
		StartedAtTime: started.Format(timeLayout),
		StartedAtDate: started.Format(dateLayout),
		EndedAtTime:   ended.Format(timeLayout),
		EndedAtDate:   ended.Format(dateLayout),
		StartAddress:  cleaned(t.StartAddress),
		EndAddress:    cleaned(t.EndAddress),
		Duration:      FormatDuration(t.DurationS),
		Distance:      FormatDistance(t.DistanceM),
		AverageMPG:    FormatMPG(t.AverageKMPL),
		FuelCost:      FormatFuelCost(t.FuelCostUSD),
	}
	d.Title = fmt.Sprintf("Drive to %s on %s", d.EndAddress, d.StartedAtDate)

	if t.FuelVolumeL != nil {
		d.FuelVolumeUSGal = humanize.FormatFloat("#,###.##", *t.FuelVolumeL/LitersPerUSGallon)
	}

	d.HardBrakesClass, d.HardBrakes = countDisplay(t.HardBrakes, ClassNoHardBrakes, ClassSomeHardBrakes)
	d.HardAccelsClass, d.HardAccels = countDisplay(t.HardAccels, ClassNoHardAccels, ClassSomeHardAccels)

	minutes := SpeedingMinutes(t.DurationOver70S)
	d.SpeedingClass, d.Speeding = countDisplay(&minutes, ClassNoSpeeding, ClassSomeSpeeding)

	return FormattedTrip{MergedTrip: t, Display: d}
}

// FormatTrips 批量格式化，保持顺序
func FormatTrips(trips []models.MergedTrip) []FormattedTrip {
	out := make([]FormattedTrip, len(trips))
	for i, t := range trips {
		out[i] = FormatTrip(t)
	}
	return out
}

// countDisplay 次数为 nil 或 0 时返回 OK
func countDisplay(n *int, none, some string) (class, value string) {
	if n == nil || *n <= 0 {
		return none, OK
	}
	return some, strconv.Itoa(*n)
}

// SpeedingMinutes 超速秒数向上取整为分钟
func SpeedingMinutes(seconds *float64) int {
	if seconds == nil || *seconds <= 0 {
		return 0
	}
	return int(math.Ceil(*seconds / 60))
}

// FormatDuration 秒数格式化为 "1h 5m" / "12m"
func FormatDuration(seconds float64) string {
	minutes := int(math.Round(seconds / 60))
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// FormatDistance 米转英里
func FormatDistance(meters float64) string {
	return humanize.FormatFloat("#,###.#", meters/MetersPerMile) + " mi"
}

// FormatMPG 公里/升 转 英里/加仑
func FormatMPG(kmpl *float64) string {
	if kmpl == nil {
		return ""
	}
	return humanize.FormatFloat("#,###.#", *kmpl*KMPLToMPG)
}

// FormatFuelCost 格式化油费
func FormatFuelCost(usd *float64) string {
	if usd == nil {
		return ""
	}
	return "$" + humanize.FormatFloat("#,###.##", *usd)
}

// location 解析 IANA 时区，失败时使用 UTC
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

var (
	zipSuffix  = regexp.MustCompile(`^([A-Z]{2})\s+\d{5}(-\d{4})?$`)
	zipOnly    = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	countryTag = map[string]bool{
		"usa":                      true,
		"us":                       true,
		"united states":            true,
		"united states of america": true,
	}
)

// CleanAddress 去掉地址末尾的国家和邮编
//
//	"123 Main St, San Francisco, CA 94107, USA" -> "123 Main St, San Francisco, CA"
func CleanAddress(s string) string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	for len(parts) > 0 {
		last := parts[len(parts)-1]
		if countryTag[strings.ToLower(last)] || zipOnly.MatchString(last) {
			parts = parts[:len(parts)-1]
			continue
		}
		if m := zipSuffix.FindStringSubmatch(last); m != nil {
			parts[len(parts)-1] = m[1]
		}
		break
	}

	return strings.Join(parts, ", ")
}

func cleanedCopy(a *models.Address) *models.Address {
	if a == nil {
		return nil
	}
	c := *a
	c.Cleaned = CleanAddress(a.Label())
	return &c
}

func cleaned(a *models.Address) string {
	if a == nil {
		return ""
	}
	return a.Cleaned
}
