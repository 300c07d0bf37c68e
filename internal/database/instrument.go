package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/flowcore/internal/metrics"
)

const startKey = "flowcore:query_start"

// InstrumentQueries 为每类 GORM 操作注册耗时上报回调
func InstrumentQueries(db *gorm.DB, collector *metrics.Collector) error {
	if collector == nil {
		return nil
	}
	name := db.Dialector.Name()

	before := func(tx *gorm.DB) { tx.InstanceSet(startKey, time.Now()) }
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			if start, ok := v.(time.Time); ok {
				collector.RecordDBQuery(name, operation, time.Since(start))
			}
		}
	}

	cb := db.Callback()
	steps := []struct {
		op       string
		register func(string, func(*gorm.DB)) error
		after    func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, s := range steps {
		if err := s.register("flowcore:before_"+s.op, before); err != nil {
			return err
		}
		if err := s.after("flowcore:after_"+s.op, after(s.op)); err != nil {
			return err
		}
	}
	return nil
}
