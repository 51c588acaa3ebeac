package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Общие ошибки хранилищ. Реализации оборачивают их через %w.
var (
	ErrNotFound = errors.New("entity not found")
	ErrConflict = errors.New("entity already exists")
	ErrInvalid  = errors.New("invalid entity")
)

// MaxGroupTitleLength соответствует размеру колонки groups.title.
const MaxGroupTitleLength = 200

// ValidatePostText проверяет текст поста перед сохранением.
func ValidatePostText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: post text cannot be empty", ErrInvalid)
	}
	return nil
}

// ValidateCommentText проверяет текст комментария перед сохранением.
func ValidateCommentText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: comment text cannot be empty", ErrInvalid)
	}
	return nil
}

// ValidateGroup проверяет обязательные поля группы.
func ValidateGroup(title, slug string) error {
	switch {
	case strings.TrimSpace(title) == "":
		return fmt.Errorf("%w: group title cannot be empty", ErrInvalid)
	case len([]rune(title)) > MaxGroupTitleLength:
		return fmt.Errorf("%w: group title is too long", ErrInvalid)
	case !IsSlug(slug):
		return fmt.Errorf("%w: group slug must contain only letters, digits, hyphens and underscores", ErrInvalid)
	}
	return nil
}

// IsSlug - буквы, цифры, дефис и подчёркивание, не пустая строка.
func IsSlug(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == '-' || r == '_':
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
