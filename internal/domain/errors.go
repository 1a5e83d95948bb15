package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrArchive          = errors.New("archive error")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrSandboxViolation = errors.New("sandbox violation")
	ErrDocumentTooLarge = errors.New("document too large")
	// ErrInconsistent 表示 catalog 与文件系统出现了补偿无法修复的分歧，需要人工介入。
	ErrInconsistent = errors.New("internal inconsistency")

	ErrDeploymentNotFound = fmt.Errorf("deployment %w", ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("version %w", ErrNotFound)
	ErrProxyRouteNotFound = fmt.Errorf("proxy route %w", ErrNotFound)
)
