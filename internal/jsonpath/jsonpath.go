// Package jsonpath читает и изменяет JSON-деревья по путям вида "a.b[0].c".
//
// Деревья состоят из map[string]any, []any и скаляров (как после
// encoding/json). Set и Delete не изменяют исходное дерево: копируются
// только узлы на пути к изменению.
package jsonpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultCacheSize размер кэша разобранных путей по умолчанию
	DefaultCacheSize = 1000

	// MaxIndex наибольший допустимый индекс массива в пути
	MaxIndex = 1 << 16
)

// ErrInvalidPath путь нельзя применить к документу
var ErrInvalidPath = errors.New("invalid path")

type token struct {
	key     string
	index   int
	isIndex bool
}

// Engine разбирает пути с ограниченным LRU-кэшем токенов
type Engine struct {
	cache *ttlcache.Cache[string, []token]
}

// NewEngine создает Engine с кэшем на capacity путей
func NewEngine(capacity int) *Engine {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}

	cache := ttlcache.New[string, []token](
		ttlcache.WithCapacity[string, []token](uint64(capacity)),
	)

	return &Engine{cache: cache}
}

// Validate проверяет, что путь разбирается и индексы не превышают MaxIndex
func Validate(path string) error {
	_, err := tokenize(path)
	return err
}

// Get возвращает значение по пути или nil, если его нет.
// Пустой путь возвращает root, невалидный путь nil.
func (e *Engine) Get(root any, path string) any {
	tokens, err := e.tokens(path)
	if err != nil {
		return nil
	}

	node := root
	for _, t := range tokens {
		switch v := node.(type) {
		case map[string]any:
			node = v[t.text()]
		case []any:
			if !t.isIndex || t.index >= len(v) {
				return nil
			}
			node = v[t.index]
		default:
			return nil
		}
	}
	return node
}

// Set возвращает новое дерево, в котором по пути path лежит value.
// Недостающие промежуточные узлы создаются, массив дополняется nil до индекса.
func (e *Engine) Set(root any, path string, value any) (any, error) {
	tokens, err := e.tokens(path)
	if err != nil {
		return root, err
	}
	if len(tokens) == 0 {
		return value, nil
	}
	return set(root, tokens, value), nil
}

// Delete возвращает новое дерево без значения по пути.
// Элемент массива вырезается со сдвигом. Отсутствующий путь оставляет дерево как есть.
func (e *Engine) Delete(root any, path string) (any, error) {
	tokens, err := e.tokens(path)
	if err != nil {
		return root, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	result, _ := remove(root, tokens)
	return result, nil
}

// CacheLen возвращает количество закэшированных путей
func (e *Engine) CacheLen() int {
	return e.cache.Len()
}

func (e *Engine) tokens(path string) ([]token, error) {
	if path == "" {
		return nil, nil
	}
	if item := e.cache.Get(path); item != nil {
		return item.Value(), nil
	}

	tokens, err := tokenize(path)
	if err != nil {
		return nil, err
	}
	e.cache.Set(path, tokens, ttlcache.NoTTL)
	return tokens, nil
}

func (t token) text() string {
	if t.isIndex {
		return strconv.Itoa(t.index)
	}
	return t.key
}

// tokenize разбивает "a.b[0].c" на ключи и индексы
func tokenize(path string) ([]token, error) {
	var tokens []token

	for _, part := range strings.Split(path, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open != 0 {
				key := part
				if open > 0 {
					key = part[:open]
				}
				tokens = append(tokens, token{key: strings.TrimSpace(key)})
				if open < 0 {
					break
				}
				part = part[open:]
				continue
			}

			end := strings.IndexByte(part, ']')
			if end < 0 {
				tokens = append(tokens, token{key: part})
				break
			}

			inner := strings.TrimSpace(part[1:end])
			switch {
			case isDigits(inner):
				n, err := strconv.Atoi(inner)
				if err != nil || n > MaxIndex {
					return nil, fmt.Errorf("%w: index %s in %q exceeds %d", ErrInvalidPath, inner, path, MaxIndex)
				}
				tokens = append(tokens, token{index: n, isIndex: true})
			case inner != "":
				tokens = append(tokens, token{key: inner})
			}
			part = part[end+1:]
		}
	}

	return tokens, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func set(node any, tokens []token, value any) any {
	t := tokens[0]
	rest := tokens[1:]

	if t.isIndex {
		src, _ := node.([]any)
		size := len(src)
		if t.index >= size {
			size = t.index + 1
		}
		out := make([]any, size)
		copy(out, src)
		if len(rest) == 0 {
			out[t.index] = value
		} else {
			out[t.index] = set(out[t.index], rest, value)
		}
		return out
	}

	src, _ := node.(map[string]any)
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	if len(rest) == 0 {
		out[t.key] = value
	} else {
		out[t.key] = set(out[t.key], rest, value)
	}
	return out
}

// remove возвращает новое дерево и признак того, что путь существовал
func remove(node any, tokens []token) (any, bool) {
	t := tokens[0]
	rest := tokens[1:]

	switch v := node.(type) {
	case map[string]any:
		child, ok := v[t.text()]
		if !ok {
			return node, false
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		if len(rest) == 0 {
			delete(out, t.text())
			return out, true
		}
		updated, found := remove(child, rest)
		if !found {
			return node, false
		}
		out[t.text()] = updated
		return out, true

	case []any:
		if !t.isIndex || t.index >= len(v) {
			return node, false
		}
		if len(rest) == 0 {
			out := make([]any, 0, len(v)-1)
			out = append(out, v[:t.index]...)
			out = append(out, v[t.index+1:]...)
			return out, true
		}
		updated, found := remove(v[t.index], rest)
		if !found {
			return node, false
		}
		out := make([]any, len(v))
		copy(out, v)
		out[t.index] = updated
		return out, true
	}

	return node, false
}
