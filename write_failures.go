package jsondelta

import (
	"github.com/samber/lo"
)

// FailureType classifies why an action could not be applied to an item
type FailureType string

const (
	FailureMissingKey          FailureType = "missing_key"
	FailureCreateDuplicatedKey FailureType = "create_duplicated_key"
	FailureUpdateAlteredKey    FailureType = "update_altered_key"
	FailureSchema              FailureType = "schema"
	FailurePermissionDenied    FailureType = "permission_denied"
	FailureCustom              FailureType = "custom"
)

// unrecoverable reports whether retrying the same action can never succeed
func (f FailureType) unrecoverable() bool {
	switch f {
	case FailureMissingKey, FailureCreateDuplicatedKey, FailureUpdateAlteredKey, FailureSchema:
		return true
	}
	return false
}

// ErrorDetails describes a single failure
type ErrorDetails struct {
	Type    FailureType `json:"type"`
	Message string      `json:"message,omitempty"`
	// Issues is set for schema failures
	Issues []Issue `json:"issues,omitempty"`
	// Reason is set for permission failures
	Reason string `json:"reason,omitempty"`
}

// AffectedItem is an item an action failed against
type AffectedItem struct {
	ItemPK       PrimaryKeyValue `json:"item_pk"`
	Item         *Document       `json:"item,omitempty"`
	ErrorDetails ErrorDetails    `json:"error_details"`
}

// FailedAction is every failure of one action
type FailedAction struct {
	Action        WriteAction    `json:"action"`
	AffectedItems []AffectedItem `json:"affected_items"`
	Unrecoverable bool           `json:"unrecoverable,omitempty"`
	// BlockedByActionUUID is set when the action was skipped because an earlier action failed on the same item
	BlockedByActionUUID string `json:"blocked_by_action_uuid,omitempty"`
}

// SuccessfulAction lists the items an action changed
type SuccessfulAction struct {
	Action        WriteAction       `json:"action"`
	AffectedItems []PrimaryKeyValue `json:"affected_items"`
}

// failureTracker accumulates failures per action in first-failure order
type failureTracker struct {
	order   []string
	byUUID  map[string]*FailedAction
	blocked map[PrimaryKeyValue]string
}

func newFailureTracker() *failureTracker {
	return &failureTracker{
		byUUID:  map[string]*FailedAction{},
		blocked: map[PrimaryKeyValue]string{},
	}
}

func (f *failureTracker) entry(action WriteAction) *FailedAction {
	fa, ok := f.byUUID[action.UUID]
	if !ok {
		fa = &FailedAction{Action: action}
		f.byUUID[action.UUID] = fa
		f.order = append(f.order, action.UUID)
	}
	return fa
}

// fail records the failure of action on the item
func (f *failureTracker) fail(action WriteAction, key PrimaryKeyValue, item *Document, details ErrorDetails) {
	fa := f.entry(action)
	fa.AffectedItems = append(fa.AffectedItems, AffectedItem{
		ItemPK:       key,
		Item:         item,
		ErrorDetails: details,
	})
	if details.Type.unrecoverable() {
		fa.Unrecoverable = true
	}
}

// failItem records the failure of action on an existing item and blocks later actions on it
func (f *failureTracker) failItem(action WriteAction, key PrimaryKeyValue, item *Document, details ErrorDetails) {
	f.fail(action, key, item, details)
	if _, ok := f.blocked[key]; !ok {
		f.blocked[key] = action.UUID
	}
}

// blockedBy returns the uuid of the action whose failure blocks the item
func (f *failureTracker) blockedBy(key PrimaryKeyValue) (string, bool) {
	uuid, ok := f.blocked[key]
	return uuid, ok
}

// block records that action was skipped on the item because of an earlier failure
func (f *failureTracker) block(action WriteAction, key PrimaryKeyValue, item *Document, by string) {
	fa := f.entry(action)
	fa.BlockedByActionUUID = by
	fa.AffectedItems = append(fa.AffectedItems, AffectedItem{
		ItemPK:       key,
		Item:         item,
		ErrorDetails: ErrorDetails{Type: FailureCustom, Message: "blocked by a failed action: " + by},
	})
}

// merge folds nested failures into the outer action
func (f *failureTracker) merge(outer WriteAction, key PrimaryKeyValue, item *Document, nested []FailedAction) {
	for _, n := range nested {
		for _, affected := range n.AffectedItems {
			details := affected.ErrorDetails
			if details.Message == "" {
				details.Message = "nested item " + keyString(affected.ItemPK)
			} else {
				details.Message = "nested item " + keyString(affected.ItemPK) + ": " + details.Message
			}
			f.failItem(outer, key, item, details)
		}
	}
}

func (f *failureTracker) empty() bool {
	return len(f.order) == 0
}

func (f *failureTracker) list() []FailedAction {
	return lo.Map(f.order, func(uuid string, _ int) FailedAction {
		return *f.byUUID[uuid]
	})
}
