// Package validation содержит функции валидации входных данных.
package validation

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout задаёт формат дат в API (даты заказов, планов и метрик).
const DateLayout = "2006-01-02"

// ParseDate разбирает дату в формате YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

var (
	minLatitude  = decimal.NewFromInt(-90)
	maxLatitude  = decimal.NewFromInt(90)
	minLongitude = decimal.NewFromInt(-180)
	maxLongitude = decimal.NewFromInt(180)
)

// IsValidLatitude проверяет, что широта лежит в диапазоне [-90, 90].
func IsValidLatitude(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(minLatitude) && d.LessThanOrEqual(maxLatitude)
}

// IsValidLongitude проверяет, что долгота лежит в диапазоне [-180, 180].
func IsValidLongitude(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(minLongitude) && d.LessThanOrEqual(maxLongitude)
}
