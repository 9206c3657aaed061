package catalog

import (
	"strings"

	"gorm.io/gorm"

	"regioncd/app/internal/region"
)

// District is one administrative area of the local catalog.
type District struct {
	gorm.Model
	Sido         string `gorm:"size:64;not null"`
	Sigungu      string `gorm:"size:64"`
	Eupmyeondong string `gorm:"size:64"`
	Code         string `gorm:"size:10;uniqueIndex:idx_districts_code;not null"`
	FullName     string `gorm:"size:255;index:idx_districts_full_name;not null"`
}

// TableName defines the table name for the District model.
func (District) TableName() string {
	return "districts"
}

// BeforeSave keeps FullName in sync with the name parts.
func (d *District) BeforeSave(*gorm.DB) error {
	d.FullName = FullName(d.Sido, d.Sigungu, d.Eupmyeondong)
	return nil
}

// FullName joins the non-empty name parts with single spaces.
func FullName(parts ...string) string {
	return region.NormalizeQuery(strings.Join(parts, " "))
}
