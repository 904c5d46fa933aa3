package jsondelta

import (
	"strings"

	"github.com/autom8ter/jsondelta/internal/safe"
	"github.com/dop251/goja"
	"github.com/spf13/cast"
)

// PermissionType selects how a scope's records are protected
type PermissionType string

const (
	PermissionNone                   PermissionType = "none"
	PermissionBasicOwnershipProperty PermissionType = "basic_ownership_property"
	PermissionScript                 PermissionType = "script"
)

// OwnerPropertyType is the kind of identity stored on the owner property
type OwnerPropertyType string

const (
	OwnerID    OwnerPropertyType = "id"
	OwnerEmail OwnerPropertyType = "email"
)

// Permissions is a scope's permission rule
type Permissions struct {
	Type PermissionType `json:"type"`
	// PropertyType and Path configure basic_ownership_property
	PropertyType OwnerPropertyType `json:"property_type,omitempty"`
	Path         string            `json:"path,omitempty"`
	// Script is a javascript expression evaluated with the globals item, user and action
	Script string `json:"script,omitempty"`
}

// Permission denial reasons
const (
	ReasonNoOwnerID          = "no-owner-id"
	ReasonNotOwner           = "not-owner"
	ReasonUnknownPermission  = "unknown-permission"
	ReasonInvalidPermissions = "invalid-permissions"
	ReasonExpectedOwnerEmail = "expected-owner-email"
	ReasonScriptDenied       = "script-denied"
	ReasonScriptError        = "script-error"
)

// User is the identity write actions are applied on behalf of
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// OwnershipCheck decides whether the user may write the item in the scope. It returns an empty
// reason when the write is allowed.
type OwnershipCheck func(scope *Scope, item *Document, user *User, action WriteAction) (reason string)

// permissionChecker evaluates DDL permissions. Compiled scripts are cached by source.
type permissionChecker struct {
	scripts *safe.Map[*goja.Program]
}

func newPermissionChecker() *permissionChecker {
	return &permissionChecker{
		scripts: safe.NewMap[*goja.Program](nil),
	}
}

// check returns the denial reason for writing the item, or "" if the write is allowed
func (p *permissionChecker) check(scope *Scope, item *Document, user *User, action WriteAction) string {
	perms := scope.Permissions
	if perms == nil {
		return ""
	}
	switch perms.Type {
	case PermissionNone:
		return ""
	case PermissionBasicOwnershipProperty:
		return checkOwnership(perms, item, user)
	case PermissionScript:
		return p.checkScript(perms, item, user, action)
	}
	return ReasonUnknownPermission
}

func checkOwnership(perms *Permissions, item *Document, user *User) string {
	if perms.Path == "" {
		return ReasonInvalidPermissions
	}
	owner := item.Get(perms.Path)
	switch perms.PropertyType {
	case OwnerID:
		id := cast.ToString(owner)
		if id == "" {
			return ReasonNoOwnerID
		}
		if user == nil || user.ID != id {
			return ReasonNotOwner
		}
		return ""
	case OwnerEmail:
		email, ok := owner.(string)
		if !ok || !strings.Contains(email, "@") {
			return ReasonExpectedOwnerEmail
		}
		if user == nil || !strings.EqualFold(user.Email, email) {
			return ReasonNotOwner
		}
		return ""
	}
	return ReasonInvalidPermissions
}

func (p *permissionChecker) program(script string) (*goja.Program, error) {
	return p.scripts.GetOrCompute(script, func() (*goja.Program, error) {
		return goja.Compile("permission", script, true)
	})
}

func (p *permissionChecker) checkScript(perms *Permissions, item *Document, user *User, action WriteAction) string {
	if strings.TrimSpace(perms.Script) == "" {
		return ReasonInvalidPermissions
	}
	program, err := p.program(perms.Script)
	if err != nil {
		return ReasonScriptError
	}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	var u any
	if user != nil {
		u = map[string]any{"id": user.ID, "email": user.Email}
	}
	globals := map[string]any{
		"item":   item.Value(),
		"user":   u,
		"action": map[string]any{"uuid": action.UUID, "ts": action.Ts, "type": payloadType(action.Payload)},
	}
	for k, v := range globals {
		if err := vm.Set(k, v); err != nil {
			return ReasonScriptError
		}
	}
	result, err := vm.RunProgram(program)
	if err != nil {
		return ReasonScriptError
	}
	if !result.ToBoolean() {
		return ReasonScriptDenied
	}
	return ""
}

func payloadType(p Payload) string {
	if p == nil {
		return ""
	}
	return string(p.Type())
}
