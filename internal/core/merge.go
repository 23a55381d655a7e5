package core

// Action is the outcome of merging one incoming entity.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionUnchanged
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "unchanged"
	}
}

// MergeOutcome is the result of Resolve.
type MergeOutcome struct {
	Action  Action
	Entity  Entity
	Changed []string // fields whose value differs from the stored one
}

// Resolve merges incoming into the stored entity under the same key.
// Without a match the incoming entity is created as is. With a match every
// UpdateFields value is overwritten by the incoming one, nulls included; the
// identity fields and id of the stored row are kept.
func Resolve(def EntityDefinition, existing *Entity, incoming Entity) MergeOutcome {
	if existing == nil {
		return MergeOutcome{Action: ActionCreate, Entity: incoming}
	}

	merged := existing.Fields.Clone()
	var changed []string
	for _, f := range def.UpdateFields() {
		in := incoming.Fields.Get(f)
		if !existing.Fields.Get(f).Equal(in) {
			changed = append(changed, f)
		}
		merged[f] = in
	}

	out := Entity{
		ID:     existing.ID,
		Key:    incoming.Key,
		Fields: merged,
		Source: incoming.Source,
		Line:   incoming.Line,
	}
	if len(changed) == 0 {
		return MergeOutcome{Action: ActionUnchanged, Entity: out}
	}
	return MergeOutcome{Action: ActionUpdate, Entity: out, Changed: changed}
}

// Partition resolves each entity against snap into a write plan. Entities
// without a store key go to Create for the executor to reject. Later entities
// hitting an already planned key are counted as duplicates.
func Partition(def EntityDefinition, snap *Snapshot, entities []Entity) (plan Plan, unchanged, duplicates int) {
	plan.Fields = def.UpdateFields()
	planned := make(map[string]bool, len(entities))

	for _, e := range entities {
		if e.Key == "" {
			plan.Create = append(plan.Create, e)
			continue
		}
		if planned[e.Key] {
			duplicates++
			continue
		}
		planned[e.Key] = true

		var existing *Entity
		if found, ok := snap.Get(e.Key); ok {
			existing = &found
		}

		out := Resolve(def, existing, e)
		switch out.Action {
		case ActionCreate:
			plan.Create = append(plan.Create, out.Entity)
		case ActionUpdate:
			plan.Update = append(plan.Update, out.Entity)
		default:
			unchanged++
		}
	}
	return plan, unchanged, duplicates
}
