package repository

import "errors"

// ErrNotFound 记录不存在（gorm.ErrRecordNotFound 统一转成这个）
var ErrNotFound = errors.New("repository: record not found")

// ErrDuplicateKey 主键已存在（gorm.ErrDuplicatedKey 统一转成这个）
var ErrDuplicateKey = errors.New("repository: duplicate key")
