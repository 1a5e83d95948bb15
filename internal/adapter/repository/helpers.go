package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chiwei-platform/phost/internal/domain"
	"gorm.io/gorm"
)

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}

// lookupColumn 把查找字段映射为列名，避免把调用方输入拼进 SQL。
func lookupColumn(field domain.LookupField) (string, error) {
	switch field {
	case domain.LookupByID:
		return "id", nil
	case domain.LookupByName:
		return "name", nil
	case domain.LookupBySubdomain:
		return "subdomain", nil
	}
	return "", fmt.Errorf("%w: unknown lookup field %q", domain.ErrInvalidInput, field)
}
