package utils

import (
	"gorm.io/gorm"
)

// check if id exists inside tx, return RecordNotFound Error
func ValidateResourceId[T any](tx *gorm.DB, id interface{}) error {
	count, err := ResourceCountWhere[T](tx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateUnique fails when another row already carries value in column.
func ValidateUnique[T any](tx *gorm.DB, column string, value interface{}, exceptId string) error {
	var count int64
	var err error
	if exceptId == "" {
		count, err = ResourceCountWhere[T](tx, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](tx, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return Conflict("duplicate %s", column)
	}
	return nil
}

// count records WHERE $condition
func ResourceCountWhere[T any](tx *gorm.DB, condition string, value ...interface{}) (int64, error) {
	var model T
	var count int64
	if err := tx.Model(&model).Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
