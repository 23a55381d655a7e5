package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/recon/internal/logging"
)

// maxLoggedKeys bounds the keys attached to a constraint violation.
const maxLoggedKeys = 20

// Plan is the partitioned write set of one entity type.
type Plan struct {
	Create []Entity
	Update []Entity
	Fields []string // fixed field list of the bulk update
}

// UpsertResult counts what Execute wrote.
type UpsertResult struct {
	Created   int
	Updated   int
	Skipped   int
	Conflicts int
}

// Execute writes plan through w inside the caller's transaction: entities
// with unresolved required references are dropped, then one bulk insert
// (conflicts ignored) and one bulk update run. A constraint violation is
// logged with the offending keys and returned so the caller rolls back.
func Execute(ctx context.Context, w Writer, def EntityDefinition, plan Plan) (UpsertResult, []InvalidRowError, error) {
	var (
		res   UpsertResult
		skips []InvalidRowError
	)

	create, dropped := dropUnresolved(def, plan.Create)
	skips = append(skips, dropped...)
	update, dropped := dropUnresolved(def, plan.Update)
	skips = append(skips, dropped...)
	res.Skipped = len(skips)

	if len(create) > 0 {
		n, err := w.BulkInsert(ctx, def, create)
		if err != nil {
			return res, skips, violation(ctx, def, create, "bulk insert", err)
		}
		res.Created = int(n)
		if c := len(create) - int(n); c > 0 {
			res.Conflicts = c
			res.Skipped += c
			skips = append(skips, InvalidRowError{
				Reason: SkipConflict,
				Detail: fmt.Sprintf("%d rows already present", c),
			})
		}
	}

	if len(update) > 0 {
		fields := plan.Fields
		if len(fields) == 0 {
			fields = def.UpdateFields()
		}
		n, err := w.BulkUpdate(ctx, def, update, fields)
		if err != nil {
			return res, skips, violation(ctx, def, update, "bulk update", err)
		}
		res.Updated = int(n)
	}

	return res, skips, nil
}

func dropUnresolved(def EntityDefinition, entities []Entity) (kept []Entity, skips []InvalidRowError) {
	kept = entities[:0:0]
	for _, e := range entities {
		if missing := def.Unresolved(e); len(missing) > 0 {
			skips = append(skips, InvalidRowError{
				Source: e.Source,
				Line:   e.Line,
				Key:    e.Key,
				Reason: SkipUnresolvedReference,
				Detail: strings.Join(missing, ", "),
			})
			continue
		}
		kept = append(kept, e)
	}
	return kept, skips
}

// violation completes a *ConstraintViolation with the batch keys and logs it.
// Other errors are wrapped unchanged.
func violation(ctx context.Context, def EntityDefinition, batch []Entity, op string, err error) error {
	var cv *ConstraintViolation
	if !errors.As(err, &cv) {
		return fmt.Errorf("%s %s: %w", op, def.Type, err)
	}

	cv.Entity = def.Type
	if len(cv.Keys) == 0 {
		for _, e := range batch {
			if len(cv.Keys) == maxLoggedKeys {
				break
			}
			cv.Keys = append(cv.Keys, e.Key)
		}
	}

	logging.FromContext(ctx).Error("constraint violation",
		"entity", def.Type,
		"operation", op,
		"constraint", cv.Constraint,
		"keys", cv.Keys,
		"error", cv.Err,
	)
	return cv
}
