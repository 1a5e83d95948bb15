package domain

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	maxNameLength    = 255
	maxVersionLength = 32
	// LatestLink 是指向激活版本目录的符号链接名，不能用作版本号。
	LatestLink = "latest"
)

// deploymentNameRegex 白名单：字母、数字、空格、-、_
var deploymentNameRegex = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// ValidateName 校验 Deployment / ProxyRoute 名称。
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, maxNameLength)
	}
	if !deploymentNameRegex.MatchString(name) {
		return fmt.Errorf("%w: name %q may only contain letters, digits, spaces, '-' and '_'", ErrInvalidInput, name)
	}
	return nil
}

// dnsLabelRegex 匹配 RFC 1123 DNS label：小写字母数字开头结尾，中间可含连字符，长度 1-63。
var dnsLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeSubdomain 统一转小写并去除首尾空白。
func NormalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateSubdomain 校验（已归一化的）子域名是否是合法的 DNS label。
func ValidateSubdomain(subdomain string) error {
	if !dnsLabelRegex.MatchString(subdomain) {
		return fmt.Errorf("%w: subdomain %q is not a valid DNS label", ErrInvalidInput, subdomain)
	}
	return nil
}

// NormalizeVersion 版本号大小写不敏感，统一存小写。
func NormalizeVersion(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// ValidateVersion 校验版本号可以安全地作为单级目录名。
func ValidateVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidInput)
	}
	if len(v) > maxVersionLength {
		return fmt.Errorf("%w: version must be at most %d characters", ErrInvalidInput, maxVersionLength)
	}
	if v == "." || v == ".." || v == LatestLink || strings.HasPrefix(v, ".") {
		return fmt.Errorf("%w: %q is a reserved version label", ErrInvalidInput, v)
	}
	if strings.ContainsAny(v, `/\`) || strings.ContainsFunc(v, isControlOrSpace) {
		return fmt.Errorf("%w: version %q must not contain slashes or whitespace", ErrInvalidInput, v)
	}
	return nil
}

func isControlOrSpace(r rune) bool {
	return r <= ' ' || r == 0x7f
}

// ValidateNotFoundDocument 校验自定义 404 文档路径：可为空，必须是相对路径且不能包含 ".."。
// 真正的沙箱检查在解析时对规范化后的路径再做一次。
func ValidateNotFoundDocument(doc string) error {
	if doc == "" {
		return nil
	}
	if strings.HasPrefix(doc, "/") || strings.HasPrefix(doc, `\`) {
		return fmt.Errorf("%w: not_found_document must be a relative path", ErrInvalidInput)
	}
	for _, seg := range strings.Split(path.Clean(doc), "/") {
		if seg == ".." {
			return fmt.Errorf("%w: not_found_document %q must not contain '..'", ErrInvalidInput, doc)
		}
	}
	return nil
}

// ValidateDestinationAddress 只允许 http/https 的绝对地址作为代理上游。
func ValidateDestinationAddress(addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("%w: destination_address: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: destination_address must use http:// or https://", ErrInvalidInput)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: destination_address must include a host", ErrInvalidInput)
	}
	return nil
}
