package domain

import "fmt"

// LookupField 指定按哪个字段定位 Deployment / ProxyRoute。
type LookupField string

const (
	LookupByID        LookupField = "id"
	LookupByName      LookupField = "name"
	LookupBySubdomain LookupField = "subdomain"
)

// ParseLookupField 解析调用方传入的查找字段，空值默认为 id。
func ParseLookupField(s string) (LookupField, error) {
	switch LookupField(s) {
	case "":
		return LookupByID, nil
	case LookupByID, LookupByName, LookupBySubdomain:
		return LookupField(s), nil
	}
	return "", fmt.Errorf("%w: lookup field %q must be one of id, name, subdomain", ErrInvalidInput, s)
}

// Ref 是一个 (字段, 值) 形式的实体引用。
type Ref struct {
	Field LookupField
	Value string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s=%s", r.Field, r.Value)
}
