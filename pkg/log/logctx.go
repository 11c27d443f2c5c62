// log даёт request-scoped логгер через context: транспортный слой кладёт
// обогащённый (request_id и т.п.) *slog.Logger в контекст запроса,
// нижние слои достают его через From, не зная о транспорте.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into возвращает контекст с привязанным логгером.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста; без логгера (или при мусорном значении
// по ключу) возвращает slog.Default(), чтобы вызывающему не нужен был nil-чек.
func From(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok || l == nil {
		return slog.Default()
	}

	return l
}
