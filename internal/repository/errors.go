package repository

import "errors"

// 対象が見つからないことを統一して表す
var ErrNotFound = errors.New("not found")

// ユーザーが見つからない
var ErrUserNotFound = errors.New("user not found")

// リフレッシュトークンが見つからない
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// 一意制約違反（emailやidempotency_keyの重複）
var ErrDuplicateKey = errors.New("duplicate key")
