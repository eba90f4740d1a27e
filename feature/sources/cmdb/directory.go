package cmdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"vdi-inventory/core/inventory"
)

// TableName is the CMDB export table the adapter reads.
const TableName = "computers"

// RequiredColumns are the columns the adapter selects. The doctor command
// verifies them before a live run.
var RequiredColumns = []string{"name", "domain", "description", "created_at", "last_logon", "member_of"}

// computerRow mirrors one row of the CMDB computers export.
type computerRow struct {
	Name        string    `gorm:"column:name"`
	Domain      string    `gorm:"column:domain"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	LastLogon   time.Time `gorm:"column:last_logon"`
	MemberOf    string    `gorm:"column:member_of"`
}

func (computerRow) TableName() string { return TableName }

func (r computerRow) toGroup() *inventory.DirectoryGroup {
	var groups []string
	for _, g := range strings.Split(r.MemberOf, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return &inventory.DirectoryGroup{
		Created:     r.CreatedAt,
		LastLogon:   r.LastLogon,
		Description: r.Description,
		MemberOf:    groups,
	}
}

// Directory looks computer accounts up in the CMDB export table.
type Directory struct {
	db *gorm.DB
}

// NewDirectory wraps an open CMDB connection.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Lookup implements inventory.Directory. Name matching is case-insensitive;
// the export stores short names without the domain.
func (d *Directory) Lookup(ctx context.Context, shortName string) (*inventory.DirectoryGroup, error) {
	var row computerRow
	err := d.db.WithContext(ctx).
		Where("UPPER(name) = ?", strings.ToUpper(shortName)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, inventory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toGroup(), nil
}
