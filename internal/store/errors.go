package store

import "errors"

// ErrDuplicateKey 表示写入违反了唯一约束。
var ErrDuplicateKey = errors.New("唯一约束冲突")
